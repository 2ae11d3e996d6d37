package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/maximegiguere1one/chiroflow/internal/shared/domain"
)

// ServiceType is a bookable treatment with a fixed duration.
type ServiceType struct {
	sharedDomain.BaseEntity
	ownerID             uuid.UUID
	name                string
	durationMinutes     int
	priceCents          int64
	allowsOnlineBooking bool
	requiresDeposit     bool
	active              bool
}

// NewServiceType creates an active service type.
func NewServiceType(ownerID uuid.UUID, name string, durationMinutes int, priceCents int64, now time.Time) (*ServiceType, error) {
	name = strings.TrimSpace(name)
	switch {
	case ownerID == uuid.Nil:
		return nil, sharedDomain.NewValidationError("owner_id", "is required")
	case name == "":
		return nil, sharedDomain.NewValidationError("name", "is required")
	case durationMinutes <= 0:
		return nil, sharedDomain.NewValidationError("duration_minutes", "must be positive")
	case priceCents < 0:
		return nil, sharedDomain.NewValidationError("price_cents", "must not be negative")
	}
	return &ServiceType{
		BaseEntity:          sharedDomain.NewBaseEntityAt(uuid.New(), now),
		ownerID:             ownerID,
		name:                name,
		durationMinutes:     durationMinutes,
		priceCents:          priceCents,
		allowsOnlineBooking: true,
		active:              true,
	}, nil
}

// RehydrateServiceType recreates a service type from persisted state.
func RehydrateServiceType(
	id, ownerID uuid.UUID,
	name string,
	durationMinutes int,
	priceCents int64,
	allowsOnlineBooking, requiresDeposit, active bool,
	createdAt, updatedAt time.Time,
) *ServiceType {
	return &ServiceType{
		BaseEntity:          sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		ownerID:             ownerID,
		name:                name,
		durationMinutes:     durationMinutes,
		priceCents:          priceCents,
		allowsOnlineBooking: allowsOnlineBooking,
		requiresDeposit:     requiresDeposit,
		active:              active,
	}
}

func (s *ServiceType) OwnerID() uuid.UUID        { return s.ownerID }
func (s *ServiceType) Name() string              { return s.name }
func (s *ServiceType) DurationMinutes() int      { return s.durationMinutes }
func (s *ServiceType) PriceCents() int64         { return s.priceCents }
func (s *ServiceType) AllowsOnlineBooking() bool { return s.allowsOnlineBooking }
func (s *ServiceType) RequiresDeposit() bool     { return s.requiresDeposit }
func (s *ServiceType) IsActive() bool            { return s.active }

// Duration returns the service length.
func (s *ServiceType) Duration() time.Duration {
	return time.Duration(s.durationMinutes) * time.Minute
}

// SetBookingFlags updates the online-booking and deposit flags.
func (s *ServiceType) SetBookingFlags(allowsOnline, requiresDeposit bool, now time.Time) {
	s.allowsOnlineBooking = allowsOnline
	s.requiresDeposit = requiresDeposit
	s.Touch(now)
}

// Deactivate hides the service from new bookings.
func (s *ServiceType) Deactivate(now time.Time) {
	s.active = false
	s.Touch(now)
}
