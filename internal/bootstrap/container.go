package bootstrap

import (
	"context"
	"fmt"

	"trip-pivot-be/internal/config"
	"trip-pivot-be/internal/controller"
	"trip-pivot-be/internal/handler"
	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/internal/repository/unitofwork"
	"trip-pivot-be/internal/service"
	"trip-pivot-be/internal/websocket"
	"trip-pivot-be/pkg/pivot/cascade"
	"trip-pivot-be/pkg/pivot/escalation"
	"trip-pivot-be/pkg/pivot/fallback"
	"trip-pivot-be/pkg/pivot/guard"
	"trip-pivot-be/pkg/pivot/recorder"
	"trip-pivot-be/pkg/pivot/trigger"
	"trip-pivot-be/pkg/provider/candidate"
	"trip-pivot-be/pkg/provider/mood"
	"trip-pivot-be/pkg/provider/status"

	pktNats "trip-pivot-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	PivotController     controller.IPivotController
	ItineraryController controller.IItineraryController
	DeliveryHandler     *handler.DeliveryHandler

	// Background workers, started by Start
	FallbackService     service.IFallbackService
	NotificationService *service.NotificationService
	StatusPoller        *service.StatusPoller
	WebSocketHub        *websocket.Hub
	Recorder            *recorder.Recorder

	Logger logger.ILogger

	cfg      *config.Config
	natsPub  *pktNats.Publisher
	natsSub  *pktNats.Subscriber
	rdb      *redis.Client
	rebuilds *gochannel.GoChannel
}

// NewContainer wires the application. A nil db runs on in-memory
// repositories; NATS and Redis are optional and degrade to local delivery.
func NewContainer(db *gorm.DB, cfg *config.Config, sysLogger logger.ILogger) (*Container, error) {
	c := &Container{cfg: cfg, Logger: sysLogger}

	// 1. Persistence
	var uowFactory unitofwork.RepositoryFactory
	if db != nil {
		uowFactory = unitofwork.NewRepositoryFactory(db)
	} else {
		sysLogger.Warn("Container", "No database configured, using in-memory repositories", nil)
		uowFactory = unitofwork.NewMemoryRepositoryFactory()
	}

	// 2. Infrastructure
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		sysLogger.Warn("Container", "NATS publisher unavailable", map[string]interface{}{"error": err.Error()})
	} else {
		c.natsPub = natsPub
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		sysLogger.Warn("Container", "NATS subscriber unavailable", map[string]interface{}{"error": err.Error()})
	} else {
		c.natsSub = natsSub
	}
	c.rdb = connectRedis(cfg.App.RedisURL, sysLogger)

	// 3. Providers
	search := candidate.NewHTTPProvider(cfg.Providers.CandidateStoreURL, cfg.Providers.HTTPTimeout)
	statuses := status.NewHTTPProvider(cfg.Providers.StatusURL, cfg.Providers.HTTPTimeout)
	moods := mood.NewHTTPClassifier(cfg.Providers.MoodClassifierURL, cfg.Providers.HTTPTimeout)

	// 4. Behavioral-signal recorder
	var sink recorder.Sink = recorder.NewLogSink(sysLogger)
	if c.natsPub != nil {
		sink = recorder.NewBusSink(c.natsPub, cfg.Providers.HTTPTimeout)
	}
	rec, err := recorder.New(sink, recorder.Config{
		Topic:           cfg.Recorder.Topic,
		MaxRetries:      cfg.Recorder.MaxRetries,
		InitialInterval: cfg.Recorder.InitialInterval,
		Buffer:          cfg.Recorder.Buffer,
	}, sysLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder: %w", err)
	}
	c.Recorder = rec

	// 5. Pivot engine
	store := fallback.NewStore(uowFactory.NewUnitOfWork(context.Background()).FallbackRepository(), search, fallback.Options{
		CacheTTL:     cfg.Pivot.FallbackCacheTTL,
		RadiusMeters: cfg.Pivot.SearchRadiusMeters,
		LookupLimit:  fallback.DefaultOptions().LookupLimit,
	}, sysLogger)

	cascadeConfig := cascade.DefaultConfig()
	cascadeConfig.Thresholds = cascade.Thresholds{
		ProximityThreshold: cfg.Pivot.ProximityThreshold,
		WalkingSpeedKmh:    cfg.Pivot.WalkingSpeedKmh,
		MealWindow:         cfg.Pivot.MealWindow,
		DailyEnergyBudget:  cfg.Pivot.DailyEnergyBudget,
	}
	cascadeConfig.SearchRadius = cfg.Pivot.SearchRadiusMeters
	evaluator := cascade.NewEvaluator(store, search, cascadeConfig, sysLogger)

	classifier := trigger.NewClassifier(trigger.Budgets{
		VenueClosed:  cfg.Pivot.VenueClosedBudget,
		Weather:      cfg.Pivot.WeatherBudget,
		MoodSignal:   cfg.Pivot.MoodBudget,
		TransitDelay: cfg.Pivot.TransitBudget,
		UserText:     cfg.Pivot.UserTextBudget,
		Cascade:      cfg.Pivot.CascadeBudget,
		Unrecognized: cfg.Pivot.UnrecognizedBudget,
	}, cfg.Pivot.MoodConfidenceFloor)

	var window escalation.Window = escalation.NewMemoryWindow(cfg.Pivot.SignalWindow)
	if c.rdb != nil {
		window = escalation.NewRedisWindow(c.rdb, cfg.Pivot.SignalWindow)
	}
	coordinator := escalation.NewCoordinator(window, sysLogger)

	// 6. Fallback rebuild queue
	c.rebuilds = gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	c.FallbackService = service.NewFallbackService(
		uowFactory,
		store,
		c.rebuilds,
		cfg.Pivot.FallbackRebuildTopic,
		cfg.Pivot.RebuildConcurrency,
		sysLogger,
	)

	// 7. Delivery
	deliveryLogger := logger.NewIsolatedLogger(cfg.App.DeliveryLogPath)
	c.WebSocketHub = websocket.NewHub(c.rdb, deliveryLogger)

	var publisher service.EventPublisher
	if c.natsPub != nil {
		publisher = c.natsPub
	}
	c.NotificationService = service.NewNotificationService(publisher, c.natsSub, c.WebSocketHub, deliveryLogger)

	// 8. Services
	pivotService := service.NewPivotService(service.PivotServiceDeps{
		UowFactory:  uowFactory,
		Classifier:  classifier,
		Mood:        moods,
		Evaluator:   evaluator,
		Guard:       guard.New(guard.Policy{DefaultDepth: cfg.Pivot.DefaultDepth, ExplicitDepth: cfg.Pivot.ExplicitDepth}),
		Coordinator: coordinator,
		Fallbacks:   c.FallbackService,
		Store:       store,
		Recorder:    rec,
		Notifier:    c.NotificationService,
		Options: service.PivotOptions{
			ConflictReevaluation: cfg.Pivot.ConflictReevaluation,
			MoodTimeout:          cfg.Pivot.MoodBudget,
			AlternativesTimeout:  cfg.Pivot.UserTextBudget,
		},
		Logger: sysLogger,
	})
	itineraryService := service.NewItineraryService(uowFactory, c.FallbackService)

	c.StatusPoller = service.NewStatusPoller(uowFactory, statuses, pivotService, service.PollerOptions{
		Interval:    cfg.Poller.Interval,
		Lookahead:   cfg.Poller.Lookahead,
		MinSeverity: cfg.Poller.MinSeverity,
		IgnoreAfter: cfg.Poller.IgnoreAfter,
	}, sysLogger)

	// 9. Controllers
	c.PivotController = controller.NewPivotController(pivotService)
	c.ItineraryController = controller.NewItineraryController(itineraryService, pivotService)
	c.DeliveryHandler = handler.NewDeliveryHandler(c.WebSocketHub, deliveryLogger)

	return c, nil
}

func connectRedis(url string, log logger.ILogger) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("Container", "Failed to parse Redis URL, using it as an address", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Warn("Container", "Redis unavailable, signal windows stay in process", map[string]interface{}{"error": err.Error()})
		rdb.Close()
		return nil
	}
	return rdb
}

// Start launches every background worker. They stop when ctx is cancelled.
func (c *Container) Start(ctx context.Context) error {
	go c.WebSocketHub.Run(ctx)
	c.Recorder.Start(ctx)

	if err := c.FallbackService.Consume(ctx); err != nil {
		return fmt.Errorf("failed to start fallback consumer: %w", err)
	}
	if err := c.NotificationService.Start(); err != nil {
		// local delivery still works
		c.Logger.Warn("Container", "Notification subscriber not started", map[string]interface{}{"error": err.Error()})
	}
	if c.cfg.Poller.Enabled {
		go c.StatusPoller.Run(ctx)
	}
	return nil
}

// Close releases connections after the workers have stopped.
func (c *Container) Close() {
	if err := c.Recorder.Close(); err != nil {
		c.Logger.Warn("Container", "Recorder close failed", map[string]interface{}{"error": err.Error()})
	}
	if c.rebuilds != nil {
		c.rebuilds.Close()
	}
	if c.natsSub != nil {
		c.natsSub.Close()
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	if c.rdb != nil {
		c.rdb.Close()
	}
}
