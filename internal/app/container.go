package app

import (
	"context"
	"fmt"
	"log/slog"

	accessApp "github.com/maximegiguere1one/chiroflow/internal/access/application"
	accessDomain "github.com/maximegiguere1one/chiroflow/internal/access/domain"
	notificationSubs "github.com/maximegiguere1one/chiroflow/internal/notifications/application/subscribers"
	schedulingCommands "github.com/maximegiguere1one/chiroflow/internal/scheduling/application/commands"
	schedulingQueries "github.com/maximegiguere1one/chiroflow/internal/scheduling/application/queries"
	schedulingDomain "github.com/maximegiguere1one/chiroflow/internal/scheduling/domain"
	sharedApplication "github.com/maximegiguere1one/chiroflow/internal/shared/application"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/convert"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/crypto"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database"
	_ "github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/eventbus"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/migrations"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/resilience"
	waitlistCommands "github.com/maximegiguere1one/chiroflow/internal/waitlist/application/commands"
	waitlistWorkers "github.com/maximegiguere1one/chiroflow/internal/waitlist/application/workers"
	waitlistDomain "github.com/maximegiguere1one/chiroflow/internal/waitlist/domain"
	"github.com/maximegiguere1one/chiroflow/pkg/config"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger
	Clock  sharedApplication.Clock

	// Database
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis
	RedisClient *redis.Client

	// Observability
	Metrics    observability.Metrics
	Registry   *prometheus.Registry
	Health     *observability.HealthRegistry
	Repository *RepositoryFactory

	// Repositories
	AppointmentRepo   schedulingDomain.AppointmentRepository
	BusinessHoursRepo schedulingDomain.BusinessHoursRepository
	ServiceTypeRepo   schedulingDomain.ServiceTypeRepository
	RescheduleRepo    schedulingDomain.RescheduleRecordRepository
	EntryRepo         waitlistDomain.WaitlistEntryRepository
	OfferRepo         waitlistDomain.SlotOfferRepository
	RebookingRepo     waitlistDomain.RebookingRequestRepository
	TokenRepo         accessDomain.TokenRepository
	OutboxRepo        outbox.Repository

	// Unit of Work
	UnitOfWork sharedApplication.UnitOfWork

	// Publishers
	EventPublisher    eventbus.Publisher
	InProcessEventBus *eventbus.InProcessEventBus
	LinkSubscriber    *notificationSubs.LinkSubscriber

	// Scheduling
	Policy                    schedulingDomain.ReschedulePolicy
	SetBusinessHoursHandler   *schedulingCommands.SetBusinessHoursHandler
	AddServiceTypeHandler     *schedulingCommands.AddServiceTypeHandler
	BookAppointmentHandler    *schedulingCommands.BookAppointmentHandler
	CancelAppointmentHandler  *schedulingCommands.CancelAppointmentHandler
	RescheduleHandler         *schedulingCommands.RescheduleAppointmentHandler
	ConfirmAttendanceHandler  *schedulingCommands.ConfirmAttendanceHandler
	RecordOutcomeHandler      *schedulingCommands.RecordOutcomeHandler
	GetAvailableSlotsHandler  *schedulingQueries.GetAvailableSlotsHandler
	GetAppointmentHandler     *schedulingQueries.GetAppointmentHandler
	CanPatientRescheduleQuery *schedulingQueries.CanPatientRescheduleHandler

	// Waitlist
	JoinWaitlistHandler      *waitlistCommands.JoinWaitlistHandler
	OpenSlotOfferHandler     *waitlistCommands.OpenSlotOfferHandler
	AcceptInvitationHandler  *waitlistCommands.AcceptInvitationHandler
	DeclineInvitationHandler *waitlistCommands.DeclineInvitationHandler
	CancelSlotOfferHandler   *waitlistCommands.CancelSlotOfferHandler
	ExpireOffersHandler      *waitlistCommands.ExpireOffersHandler
	CreateRebookingHandler   *waitlistCommands.CreateRebookingRequestHandler
	RespondRebookingHandler  *waitlistCommands.RespondRebookingHandler
	OfferExpiryWorker        *waitlistWorkers.OfferExpiryWorker

	// Access
	TokenService *accessApp.TokenService
	Gateway      *accessApp.Gateway

	// Outbox Processor
	OutboxProcessor *outbox.Processor

	rabbit *eventbus.RabbitMQPublisher
}

// Option adjusts a container before wiring.
type Option func(*Container)

// WithClock replaces the system clock.
func WithClock(clock sharedApplication.Clock) Option {
	return func(c *Container) { c.Clock = clock }
}

// WithMetrics replaces the Prometheus metrics sink.
func WithMetrics(m observability.Metrics) Option {
	return func(c *Container) { c.Metrics = m }
}

// NewContainer creates and wires all dependencies. An empty DatabaseURL
// opens the embedded SQLite store and migrates it.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config: cfg,
		Logger: logger,
		Clock:  sharedApplication.SystemClock(),
		Health: observability.NewHealthRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Metrics == nil {
		c.Registry = prometheus.NewRegistry()
		c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		c.Metrics = observability.NewPrometheusMetrics(c.Registry)
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	if err := c.connectRedis(ctx); err != nil {
		c.Close()
		return nil, err
	}

	sealer, err := contactSealer(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	repoOpts := []RepositoryOption{
		WithSoftHolds(cfg.SoftHoldOffers),
		WithSealer(sealer),
		WithFactoryObservability(logger, c.Metrics),
	}
	if c.RedisClient != nil {
		repoOpts = append(repoOpts, WithCache(c.RedisClient, cfg.CacheTTL))
	}
	c.Repository = NewRepositoryFactory(c.DBConn, repoOpts...)
	c.AppointmentRepo = c.Repository.Appointments()
	c.BusinessHoursRepo = c.Repository.BusinessHours()
	c.ServiceTypeRepo = c.Repository.ServiceTypes()
	c.RescheduleRepo = c.Repository.RescheduleRecords()
	c.EntryRepo = c.Repository.WaitlistEntries()
	c.OfferRepo = c.Repository.SlotOffers()
	c.RebookingRepo = c.Repository.RebookingRequests()
	c.TokenRepo = c.Repository.Tokens()
	c.OutboxRepo = c.Repository.Outbox()
	c.UnitOfWork = c.Repository.UnitOfWork()

	if err := c.connectPublisher(); err != nil {
		c.Close()
		return nil, err
	}

	c.wireHandlers()

	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, processorConfig(cfg), logger).
		WithMetrics(c.Metrics)

	c.OfferExpiryWorker = waitlistWorkers.NewOfferExpiryWorker(c.ExpireOffersHandler,
		waitlistWorkers.OfferExpiryWorkerConfig{Interval: cfg.OfferSweepInterval, Limit: waitlistCommands.DefaultSweepLimit},
		observability.WithComponent(logger, "offer-expiry"))

	c.registerHealthChecks()
	return c, nil
}

func (c *Container) connect(ctx context.Context) error {
	cfg := c.Config
	dbCfg := database.Config{
		Driver:     database.Driver(cfg.DatabaseDriver),
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
		MaxConns:   cfg.DatabaseMaxConns,
	}
	if dbCfg.ResolvedDriver() == database.DriverSQLite && dbCfg.SQLitePath == "" {
		dbCfg.SQLitePath = database.DefaultSQLitePath()
	}

	conn, err := database.NewConnection(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	c.DBConn = conn
	c.DBDriver = conn.Driver()
	c.Logger.Info("connected to database", "driver", c.DBDriver)

	// The embedded store has no operator to run migrations.
	if c.DBDriver == database.DriverSQLite {
		applied, err := migrations.Run(ctx, conn, c.Logger)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		if len(applied) > 0 {
			c.Logger.Info("applied migrations", "versions", applied)
		}
	}
	return nil
}

// connectRedis is optional in development: a bad or unreachable URL only
// disables the cache.
func (c *Container) connectRedis(ctx context.Context) error {
	if c.Config.RedisURL == "" {
		return nil
	}
	opt, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		c.Logger.Warn("invalid Redis URL, catalog cache disabled", "error", err)
		return nil
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.Logger.Warn("Redis not available, catalog cache disabled", "error", err)
		return nil
	}
	c.RedisClient = client
	c.Logger.Info("connected to Redis")
	return nil
}

// connectPublisher relays to RabbitMQ when configured. Otherwise events
// are delivered in process to the link subscriber.
func (c *Container) connectPublisher() error {
	c.LinkSubscriber = notificationSubs.NewLinkSubscriber(c.Config.PublicBaseURL,
		notificationSubs.NewLogSender(observability.WithComponent(c.Logger, "notifications")), c.Logger)

	if c.Config.RabbitMQURL != "" {
		publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
		if err == nil {
			c.rabbit = publisher
			c.EventPublisher = publisher
			return nil
		}
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		c.Logger.Warn("RabbitMQ not available, delivering events in process", "error", err)
	}

	c.InProcessEventBus = eventbus.NewInProcessEventBus(c.Logger).WithMetrics(c.Metrics)
	c.InProcessEventBus.RegisterConsumer(c.LinkSubscriber)
	c.EventPublisher = c.InProcessEventBus
	return nil
}

// NotificationConsumer returns a RabbitMQ consumer that feeds the link
// subscriber, or nil when events are delivered in process.
func (c *Container) NotificationConsumer() (*eventbus.RabbitMQConsumer, error) {
	if c.rabbit == nil {
		return nil, nil
	}
	registry := eventbus.NewConsumerRegistry(c.Logger).WithMetrics(c.Metrics)
	consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
		URL:    c.Config.RabbitMQURL,
		Logger: observability.WithComponent(c.Logger, "notification-consumer"),
	}, registry)
	if err != nil {
		return nil, err
	}
	if err := consumer.RegisterConsumer(c.LinkSubscriber); err != nil {
		_ = consumer.Close()
		return nil, err
	}
	return consumer, nil
}

func (c *Container) wireHandlers() {
	cfg := c.Config
	clock := c.Clock

	tiers := make([]schedulingDomain.FeeTier, len(cfg.LateFees))
	for i, t := range cfg.LateFees {
		tiers[i] = schedulingDomain.FeeTier{Within: t.Within, AmountCents: t.AmountCents}
	}
	c.Policy = schedulingDomain.ReschedulePolicy{
		MaxReschedules: cfg.MaxReschedules,
		MinNoticeHours: cfg.MinNoticeHours,
		LateFees:       schedulingDomain.NewFeeSchedule(tiers...),
	}

	c.TokenService = accessApp.NewTokenService(c.TokenRepo, clock)

	c.SetBusinessHoursHandler = schedulingCommands.NewSetBusinessHoursHandler(c.BusinessHoursRepo, clock)
	c.AddServiceTypeHandler = schedulingCommands.NewAddServiceTypeHandler(c.ServiceTypeRepo, clock)
	c.BookAppointmentHandler = schedulingCommands.NewBookAppointmentHandler(
		c.AppointmentRepo, c.BusinessHoursRepo, c.ServiceTypeRepo, c.TokenService,
		c.OutboxRepo, c.UnitOfWork, clock,
	).WithMetrics(c.Metrics)

	c.OpenSlotOfferHandler = waitlistCommands.NewOpenSlotOfferHandler(
		c.EntryRepo, c.OfferRepo, c.TokenService, c.OutboxRepo, c.UnitOfWork, clock,
		cfg.InvitationTTL, cfg.InvitationBatchSize,
	).WithMetrics(c.Metrics)

	c.CancelAppointmentHandler = schedulingCommands.NewCancelAppointmentHandler(
		c.AppointmentRepo, c.BusinessHoursRepo, c.OpenSlotOfferHandler, c.Policy,
		c.OutboxRepo, c.UnitOfWork, clock,
	).WithMetrics(c.Metrics)
	c.RescheduleHandler = schedulingCommands.NewRescheduleAppointmentHandler(
		c.AppointmentRepo, c.RescheduleRepo, c.BusinessHoursRepo, c.Policy,
		c.OutboxRepo, c.UnitOfWork, clock,
	).WithMetrics(c.Metrics)
	c.ConfirmAttendanceHandler = schedulingCommands.NewConfirmAttendanceHandler(c.AppointmentRepo, c.OutboxRepo, c.UnitOfWork, clock)
	c.RecordOutcomeHandler = schedulingCommands.NewRecordOutcomeHandler(c.AppointmentRepo, c.OutboxRepo, c.UnitOfWork, clock)

	reader := resilience.NewReader(resilience.Config{
		Name:             "availability",
		MaxFailures:      convert.IntToUint32Clamped(max(cfg.BreakerMaxFailures, 1)),
		OpenTimeout:      cfg.BreakerOpenTimeout,
		HalfOpenRequests: 1,
		InitialInterval:  cfg.RetryInitialInterval,
		MaxElapsed:       cfg.RetryMaxElapsed,
	}, c.Logger, c.Metrics)
	c.GetAvailableSlotsHandler = schedulingQueries.NewGetAvailableSlotsHandler(
		c.BusinessHoursRepo, c.ServiceTypeRepo, c.AppointmentRepo, reader, clock,
	).WithMetrics(c.Metrics)
	c.GetAppointmentHandler = schedulingQueries.NewGetAppointmentHandler(c.AppointmentRepo, c.BusinessHoursRepo)
	c.CanPatientRescheduleQuery = schedulingQueries.NewCanPatientRescheduleHandler(c.AppointmentRepo, c.Policy, clock)

	booker := heldBooker{book: c.BookAppointmentHandler}
	c.JoinWaitlistHandler = waitlistCommands.NewJoinWaitlistHandler(c.EntryRepo, c.ServiceTypeRepo, clock)
	c.AcceptInvitationHandler = waitlistCommands.NewAcceptInvitationHandler(
		c.OfferRepo, c.EntryRepo, booker, c.OutboxRepo, c.UnitOfWork, clock,
	).WithMetrics(c.Metrics)
	c.DeclineInvitationHandler = waitlistCommands.NewDeclineInvitationHandler(
		c.OfferRepo, c.OutboxRepo, c.UnitOfWork, clock,
	).WithMetrics(c.Metrics)
	c.CancelSlotOfferHandler = waitlistCommands.NewCancelSlotOfferHandler(c.OfferRepo, c.OutboxRepo, c.UnitOfWork, clock)
	c.ExpireOffersHandler = waitlistCommands.NewExpireOffersHandler(
		c.OfferRepo, c.OutboxRepo, c.UnitOfWork, clock, c.Logger,
	).WithMetrics(c.Metrics)
	c.CreateRebookingHandler = waitlistCommands.NewCreateRebookingRequestHandler(
		c.RebookingRepo, c.ServiceTypeRepo, c.TokenService, c.OutboxRepo, c.UnitOfWork, clock, cfg.RebookingTTL,
	)
	c.RespondRebookingHandler = waitlistCommands.NewRespondRebookingHandler(
		c.RebookingRepo, booker, c.OutboxRepo, c.UnitOfWork, clock,
	)

	c.Gateway = accessApp.NewGateway(c.TokenRepo, c.UnitOfWork, clock).
		WithMetrics(c.Metrics).
		Handle(accessDomain.SubjectAppointment,
			accessApp.NewAppointmentSubject(c.AppointmentRepo, c.ConfirmAttendanceHandler, c.CancelAppointmentHandler)).
		Handle(accessDomain.SubjectInvitation,
			accessApp.NewInvitationSubject(c.OfferRepo, c.AcceptInvitationHandler, c.DeclineInvitationHandler)).
		Handle(accessDomain.SubjectRebookingRequest,
			accessApp.NewRebookingSubject(c.RebookingRepo, c.RespondRebookingHandler))
}

func (c *Container) registerHealthChecks() {
	c.Health.Register("database", observability.DatabaseHealthChecker(c.DBConn.Ping))
	if c.RedisClient != nil {
		c.Health.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
			return c.RedisClient.Ping(ctx).Err()
		}))
	}
	if c.rabbit != nil {
		c.Health.Register("rabbitmq", observability.RabbitMQHealthChecker(c.rabbit.Check))
	}
}

// Close cleans up all resources.
func (c *Container) Close() {
	if c.OfferExpiryWorker != nil {
		c.OfferExpiryWorker.Stop()
	}
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("failed to close event publisher", "error", err)
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("failed to close Redis client", "error", err)
		}
	}
	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("failed to close database connection", "error", err)
		}
	}
}

func processorConfig(cfg *config.Config) outbox.ProcessorConfig {
	pc := outbox.DefaultProcessorConfig()
	if cfg.OutboxPollInterval > 0 {
		pc.PollInterval = cfg.OutboxPollInterval
	}
	if cfg.OutboxBatchSize > 0 {
		pc.BatchSize = cfg.OutboxBatchSize
	}
	if cfg.OutboxMaxRetries > 0 {
		pc.MaxRetries = cfg.OutboxMaxRetries
	}
	return pc
}

func contactSealer(cfg *config.Config) (crypto.FieldSealer, error) {
	if cfg.ContactEncryptionKey == "" {
		return crypto.PlainSealer{}, nil
	}
	sealer, err := crypto.NewFieldSealer(cfg.ContactEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid CONTACT_ENCRYPTION_KEY: %w", err)
	}
	return sealer, nil
}
