// Package cache fronts the rarely changing scheduling catalog with Redis.
// Availability reads the owner's business hours and the service type on
// every request; both change only through staff configuration.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a cached entry may shadow the store.
const DefaultTTL = 5 * time.Minute

type options struct {
	ttl     time.Duration
	logger  *slog.Logger
	metrics observability.Metrics
}

// Option configures a cached repository.
type Option func(*options)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithLogger sets the logger for degraded cache operations.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records hits and misses.
func WithMetrics(m observability.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

func newOptions(opts []Option) options {
	o := options{ttl: DefaultTTL, logger: slog.Default(), metrics: observability.NoopMetrics{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// lookup reads key into dst. A Redis failure counts as a miss so the
// store stays the source of truth.
func (o options) lookup(ctx context.Context, client *redis.Client, kind, key string, dst any) bool {
	data, err := client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		o.metrics.Counter(observability.MetricCacheRequests, 1, observability.T("kind", kind), observability.T("result", "miss"))
		return false
	case err != nil:
		o.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
		o.metrics.Counter(observability.MetricCacheRequests, 1, observability.T("kind", kind), observability.T("result", "error"))
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		o.logger.WarnContext(ctx, "dropping undecodable cache entry", "key", key, "error", err)
		_ = client.Del(ctx, key).Err()
		return false
	}
	o.metrics.Counter(observability.MetricCacheRequests, 1, observability.T("kind", kind), observability.T("result", "hit"))
	return true
}

func (o options) store(ctx context.Context, client *redis.Client, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := client.Set(ctx, key, data, o.ttl).Err(); err != nil {
		o.logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}

func (o options) evict(ctx context.Context, client *redis.Client, key string) {
	if err := client.Del(ctx, key).Err(); err != nil {
		o.logger.WarnContext(ctx, "cache eviction failed", "key", key, "error", err)
	}
}

type dayEntry struct {
	Enabled bool   `json:"enabled"`
	Open    string `json:"open"`
	Close   string `json:"close"`
}

type businessHoursEntry struct {
	OwnerID            uuid.UUID   `json:"owner_id"`
	Timezone           string      `json:"timezone"`
	Days               [7]dayEntry `json:"days"`
	AdvanceBookingDays int         `json:"advance_booking_days"`
	MinimumNoticeHours int         `json:"minimum_notice_hours"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func toBusinessHoursEntry(hours *domain.BusinessHours) businessHoursEntry {
	entry := businessHoursEntry{
		OwnerID:            hours.OwnerID(),
		Timezone:           hours.Timezone(),
		AdvanceBookingDays: hours.AdvanceBookingDays(),
		MinimumNoticeHours: hours.MinimumNoticeHours(),
		UpdatedAt:          hours.UpdatedAt(),
	}
	for i, day := range hours.Days() {
		entry.Days[i] = dayEntry{Enabled: day.Enabled, Open: day.Open.String(), Close: day.Close.String()}
	}
	return entry
}

func (e businessHoursEntry) rehydrate() (*domain.BusinessHours, error) {
	var days [7]domain.DayHours
	for i, day := range e.Days {
		open, err := domain.ParseClockTime(day.Open)
		if err != nil {
			return nil, err
		}
		closing, err := domain.ParseClockTime(day.Close)
		if err != nil {
			return nil, err
		}
		days[i] = domain.DayHours{Enabled: day.Enabled, Open: open, Close: closing}
	}
	return domain.RehydrateBusinessHours(e.OwnerID, e.Timezone, days, e.AdvanceBookingDays, e.MinimumNoticeHours, e.UpdatedAt)
}

// BusinessHoursRepository caches FindByOwner and evicts on Save.
type BusinessHoursRepository struct {
	next   domain.BusinessHoursRepository
	client *redis.Client
	opts   options
}

// NewBusinessHoursRepository wraps next with a Redis read cache.
func NewBusinessHoursRepository(next domain.BusinessHoursRepository, client *redis.Client, opts ...Option) *BusinessHoursRepository {
	return &BusinessHoursRepository{next: next, client: client, opts: newOptions(opts)}
}

func businessHoursKey(ownerID uuid.UUID) string {
	return fmt.Sprintf("chiroflow:business_hours:%s", ownerID)
}

// Save writes through to the store and evicts the cached copy once the
// write commits.
func (r *BusinessHoursRepository) Save(ctx context.Context, hours *domain.BusinessHours) error {
	if err := r.next.Save(ctx, hours); err != nil {
		return err
	}
	key := businessHoursKey(hours.OwnerID())
	database.AfterCommit(ctx, func(ctx context.Context) { r.opts.evict(ctx, r.client, key) })
	return nil
}

// FindByOwner serves from Redis when possible. Missing schedules are not
// cached.
func (r *BusinessHoursRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.BusinessHours, error) {
	key := businessHoursKey(ownerID)

	var entry businessHoursEntry
	if r.opts.lookup(ctx, r.client, "business_hours", key, &entry) {
		hours, err := entry.rehydrate()
		if err == nil {
			return hours, nil
		}
		r.opts.evict(ctx, r.client, key)
	}

	hours, err := r.next.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	r.opts.store(ctx, r.client, key, toBusinessHoursEntry(hours))
	return hours, nil
}

type serviceTypeEntry struct {
	ID                  uuid.UUID `json:"id"`
	OwnerID             uuid.UUID `json:"owner_id"`
	Name                string    `json:"name"`
	DurationMinutes     int       `json:"duration_minutes"`
	PriceCents          int64     `json:"price_cents"`
	AllowsOnlineBooking bool      `json:"allows_online_booking"`
	RequiresDeposit     bool      `json:"requires_deposit"`
	Active              bool      `json:"active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ServiceTypeRepository caches FindByID. Listing always reads the store.
type ServiceTypeRepository struct {
	next   domain.ServiceTypeRepository
	client *redis.Client
	opts   options
}

// NewServiceTypeRepository wraps next with a Redis read cache.
func NewServiceTypeRepository(next domain.ServiceTypeRepository, client *redis.Client, opts ...Option) *ServiceTypeRepository {
	return &ServiceTypeRepository{next: next, client: client, opts: newOptions(opts)}
}

func serviceTypeKey(id uuid.UUID) string {
	return fmt.Sprintf("chiroflow:service_type:%s", id)
}

// Save writes through and evicts after commit.
func (r *ServiceTypeRepository) Save(ctx context.Context, service *domain.ServiceType) error {
	if err := r.next.Save(ctx, service); err != nil {
		return err
	}
	key := serviceTypeKey(service.ID())
	database.AfterCommit(ctx, func(ctx context.Context) { r.opts.evict(ctx, r.client, key) })
	return nil
}

// FindByID serves from Redis when possible.
func (r *ServiceTypeRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ServiceType, error) {
	key := serviceTypeKey(id)

	var e serviceTypeEntry
	if r.opts.lookup(ctx, r.client, "service_type", key, &e) {
		return domain.RehydrateServiceType(e.ID, e.OwnerID, e.Name, e.DurationMinutes, e.PriceCents,
			e.AllowsOnlineBooking, e.RequiresDeposit, e.Active, e.CreatedAt, e.UpdatedAt), nil
	}

	service, err := r.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.opts.store(ctx, r.client, key, serviceTypeEntry{
		ID:                  service.ID(),
		OwnerID:             service.OwnerID(),
		Name:                service.Name(),
		DurationMinutes:     service.DurationMinutes(),
		PriceCents:          service.PriceCents(),
		AllowsOnlineBooking: service.AllowsOnlineBooking(),
		RequiresDeposit:     service.RequiresDeposit(),
		Active:              service.IsActive(),
		CreatedAt:           service.CreatedAt(),
		UpdatedAt:           service.UpdatedAt(),
	})
	return service, nil
}

// ListByOwner reads the store directly.
func (r *ServiceTypeRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.ServiceType, error) {
	return r.next.ListByOwner(ctx, ownerID)
}
