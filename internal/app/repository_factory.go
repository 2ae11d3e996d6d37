package app

import (
	"log/slog"
	"time"

	accessDomain "github.com/maximegiguere1one/chiroflow/internal/access/domain"
	accessPersistence "github.com/maximegiguere1one/chiroflow/internal/access/infrastructure/persistence"
	schedulingDomain "github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	schedulingCache "github.com/maximegiguere1one/chiroflow/internal/scheduling/infrastructure/cache"
	schedulingPersistence "github.com/maximegiguere1one/chiroflow/internal/scheduling/infrastructure/persistence"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/crypto"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	waitlistDomain "github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
	waitlistPersistence "github.com/maximegiguere1one/chiroflow/internal/waitlist/infrastructure/persistence"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// RepositoryFactory creates repositories over one connection. The SQL
// is shared by both drivers; the factory only decides the decorations:
// the Redis read cache, soft holds and contact sealing.
type RepositoryFactory struct {
	conn      database.Connection
	redis     *redis.Client
	cacheTTL  time.Duration
	softHolds bool
	sealer    crypto.FieldSealer
	logger    *slog.Logger
	metrics   observability.Metrics
}

// RepositoryOption configures a RepositoryFactory.
type RepositoryOption func(*RepositoryFactory)

// WithCache puts business hours and service types behind Redis.
func WithCache(client *redis.Client, ttl time.Duration) RepositoryOption {
	return func(f *RepositoryFactory) {
		f.redis = client
		f.cacheTTL = ttl
	}
}

// WithSoftHolds sets whether open slot offers block ordinary bookings.
func WithSoftHolds(enabled bool) RepositoryOption {
	return func(f *RepositoryFactory) { f.softHolds = enabled }
}

// WithSealer encrypts waitlist contact details at rest.
func WithSealer(sealer crypto.FieldSealer) RepositoryOption {
	return func(f *RepositoryFactory) { f.sealer = sealer }
}

// WithFactoryObservability sets the logger and metrics handed to caches.
func WithFactoryObservability(logger *slog.Logger, metrics observability.Metrics) RepositoryOption {
	return func(f *RepositoryFactory) {
		f.logger = logger
		f.metrics = metrics
	}
}

// NewRepositoryFactory creates a new repository factory.
func NewRepositoryFactory(conn database.Connection, opts ...RepositoryOption) *RepositoryFactory {
	f := &RepositoryFactory{
		conn:      conn,
		softHolds: true,
		sealer:    crypto.PlainSealer{},
		logger:    slog.Default(),
		metrics:   observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Driver returns the connection's driver.
func (f *RepositoryFactory) Driver() database.Driver {
	return f.conn.Driver()
}

func (f *RepositoryFactory) Appointments() schedulingDomain.AppointmentRepository {
	return schedulingPersistence.NewAppointmentRepository(f.conn).WithSoftHolds(f.softHolds)
}

func (f *RepositoryFactory) BusinessHours() schedulingDomain.BusinessHoursRepository {
	repo := schedulingPersistence.NewBusinessHoursRepository(f.conn)
	if f.redis == nil {
		return repo
	}
	return schedulingCache.NewBusinessHoursRepository(repo, f.redis, f.cacheOptions()...)
}

func (f *RepositoryFactory) ServiceTypes() schedulingDomain.ServiceTypeRepository {
	repo := schedulingPersistence.NewServiceTypeRepository(f.conn)
	if f.redis == nil {
		return repo
	}
	return schedulingCache.NewServiceTypeRepository(repo, f.redis, f.cacheOptions()...)
}

func (f *RepositoryFactory) RescheduleRecords() schedulingDomain.RescheduleRecordRepository {
	return schedulingPersistence.NewRescheduleRecordRepository(f.conn)
}

func (f *RepositoryFactory) WaitlistEntries() waitlistDomain.WaitlistEntryRepository {
	return waitlistPersistence.NewWaitlistEntryRepository(f.conn, f.sealer)
}

func (f *RepositoryFactory) SlotOffers() waitlistDomain.SlotOfferRepository {
	return waitlistPersistence.NewSlotOfferRepository(f.conn)
}

func (f *RepositoryFactory) RebookingRequests() waitlistDomain.RebookingRequestRepository {
	return waitlistPersistence.NewRebookingRequestRepository(f.conn)
}

func (f *RepositoryFactory) Tokens() accessDomain.TokenRepository {
	return accessPersistence.NewTokenRepository(f.conn)
}

func (f *RepositoryFactory) Outbox() outbox.Repository {
	return outbox.NewSQLRepository(f.conn)
}

// UnitOfWork returns a unit of work over the factory's connection.
func (f *RepositoryFactory) UnitOfWork() *database.GenericUnitOfWork {
	return database.NewUnitOfWork(f.conn)
}

func (f *RepositoryFactory) cacheOptions() []schedulingCache.Option {
	opts := []schedulingCache.Option{
		schedulingCache.WithLogger(f.logger),
		schedulingCache.WithMetrics(f.metrics),
	}
	if f.cacheTTL > 0 {
		opts = append(opts, schedulingCache.WithTTL(f.cacheTTL))
	}
	return opts
}
