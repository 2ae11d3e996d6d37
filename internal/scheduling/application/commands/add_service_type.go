package commands

import (
	"context"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
)

// AddServiceTypeCommand adds a treatment to an owner's catalog.
type AddServiceTypeCommand struct {
	OwnerID             uuid.UUID
	Name                string
	DurationMinutes     int
	PriceCents          int64
	AllowsOnlineBooking bool
	RequiresDeposit     bool
}

// AddServiceTypeHandler handles AddServiceTypeCommand.
type AddServiceTypeHandler struct {
	services domain.ServiceTypeRepository
	clock    sharedApplication.Clock
}

// NewAddServiceTypeHandler creates an AddServiceTypeHandler.
func NewAddServiceTypeHandler(services domain.ServiceTypeRepository, clock sharedApplication.Clock) *AddServiceTypeHandler {
	if clock == nil {
		clock = sharedApplication.SystemClock()
	}
	return &AddServiceTypeHandler{services: services, clock: clock}
}

// Handle executes AddServiceTypeCommand.
func (h *AddServiceTypeHandler) Handle(ctx context.Context, cmd AddServiceTypeCommand) (*domain.ServiceType, error) {
	now := h.clock.Now()
	service, err := domain.NewServiceType(cmd.OwnerID, cmd.Name, cmd.DurationMinutes, cmd.PriceCents, now)
	if err != nil {
		return nil, err
	}
	service.SetBookingFlags(cmd.AllowsOnlineBooking, cmd.RequiresDeposit, now)

	if err := h.services.Save(ctx, service); err != nil {
		return nil, err
	}
	return service, nil
}
