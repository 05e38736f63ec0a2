package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/acme/lead-contact-engine/internal/channel"
	"github.com/acme/lead-contact-engine/internal/channel/email"
	"github.com/acme/lead-contact-engine/internal/channel/voice"
	"github.com/acme/lead-contact-engine/internal/channel/whatsapp"
	"github.com/acme/lead-contact-engine/internal/config"
	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/internal/infra/db"
	"github.com/acme/lead-contact-engine/internal/infra/redis"
	"github.com/acme/lead-contact-engine/internal/queue"
	"github.com/acme/lead-contact-engine/internal/repository"
	"github.com/acme/lead-contact-engine/internal/repository/memory"
	pgrepo "github.com/acme/lead-contact-engine/internal/repository/postgres"
	scyllarepo "github.com/acme/lead-contact-engine/internal/repository/scylla"
	"github.com/acme/lead-contact-engine/internal/scheduler"
	"github.com/acme/lead-contact-engine/internal/service/concurrency"
	"github.com/acme/lead-contact-engine/internal/service/dialing"
	"github.com/acme/lead-contact-engine/internal/service/dispatch"
	"github.com/acme/lead-contact-engine/internal/service/eligibility"
	"github.com/acme/lead-contact-engine/internal/service/priority"
	"github.com/acme/lead-contact-engine/internal/service/rules"
	"github.com/acme/lead-contact-engine/internal/service/rules/filestore"
	"github.com/acme/lead-contact-engine/pkg/clock"
	"github.com/acme/lead-contact-engine/pkg/logger"
)

// Container wires together shared infrastructure dependencies. Every
// infrastructure section left empty in the configuration is replaced by an
// in-process implementation.
type Container struct {
	Config *config.Config
	Logger *logger.Logger
	Clock  clock.Clock

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		err          error
		repositories *Repositories
		services     *Services
		channels     *channel.Registry
		publisher    queue.Publisher
	}
}

// Repositories are the storage ports.
type Repositories struct {
	Leads     repository.LeadDirectory
	Attempts  repository.AttemptStore
	PassStats repository.PassStatsRepository
}

// Services are the engine components.
type Services struct {
	Rules      *rules.Store
	RuleFile   *filestore.FileStore
	Evaluator  *eligibility.Evaluator
	Dialer     *dialing.Scheduler
	Calculator *priority.Calculator
	Dispatcher *dispatch.Dispatcher
	Pass       *scheduler.Pass
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	container := &Container{Config: cfg, Logger: lg, Clock: clock.Real{}}
	if err := container.connect(ctx); err != nil {
		_ = container.Close(ctx)
		return nil, err
	}
	if err := container.init(); err != nil {
		_ = container.Close(ctx)
		return nil, err
	}
	return container, nil
}

// New wires a container around already connected infrastructure.
func New(cfg *config.Config, lg *logger.Logger, clk clock.Clock) (*Container, error) {
	if lg == nil {
		lg = logger.NewNop()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	c := &Container{Config: cfg, Logger: lg, Clock: clk}
	if err := c.init(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) connect(ctx context.Context) error {
	cfg := c.Config
	if cfg.Postgres.Enabled() {
		pg, err := db.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("bootstrap postgres: %w", err)
		}
		c.Postgres = pg
	}
	if cfg.Scylla.Enabled() {
		scylla, err := db.NewScylla(cfg.Scylla)
		if err != nil {
			return fmt.Errorf("bootstrap scylla: %w", err)
		}
		c.Scylla = scylla
	}
	if cfg.Redis.Enabled() {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("bootstrap redis: %w", err)
		}
		c.Redis = client
	}
	if cfg.Kafka.Enabled() {
		k, err := queue.NewKafka(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("bootstrap kafka: %w", err)
		}
		c.Kafka = k
	}
	return nil
}

func (c *Container) init() error {
	c.components.once.Do(func() {
		c.components.err = c.initComponents()
	})
	return c.components.err
}

func (c *Container) initComponents() error {
	cfg := c.Config
	log := c.Logger

	repos := &Repositories{}
	if c.Postgres != nil {
		repos.Leads = pgrepo.NewLeadRepository(c.Postgres.DB())
		repos.PassStats = pgrepo.NewPassStatsRepository(c.Postgres.DB())
	} else {
		log.Warn("postgres not configured, using in-memory lead directory")
		repos.Leads = memory.NewLeadDirectory()
		repos.PassStats = memory.NewPassStatsRepository()
	}
	if c.Scylla != nil {
		repos.Attempts = scyllarepo.NewAttemptStore(c.Scylla.Session())
	} else {
		repos.Attempts = memory.NewAttemptStore()
	}

	var (
		gauge  concurrency.Gauge  = concurrency.NewLocalGauge()
		spacer concurrency.Spacer = concurrency.NewLocalSpacer()
	)
	if c.Redis != nil {
		gauge = concurrency.NewRedisGauge(c.Redis.Inner(), cfg.Redis.KeyPrefix, cfg.Dispatch.InFlightTTL)
		spacer = concurrency.NewRedisSpacer(c.Redis.Inner(), cfg.Redis.KeyPrefix)
	}

	var publisher queue.Publisher = queue.NopPublisher{}
	if c.Kafka != nil {
		publisher = queue.NewKafkaPublisher(c.Kafka, cfg.Kafka.OutcomeTopic, cfg.Kafka.PassTopic)
	}

	channels, err := c.buildChannels()
	if err != nil {
		return err
	}

	svc := &Services{}
	var persister rules.Persister
	if cfg.Rules.Path != "" {
		svc.RuleFile = filestore.New(cfg.Rules.Path, log)
		persister = svc.RuleFile
	}
	svc.Rules = rules.NewStore(persister, c.Clock, log)
	if svc.RuleFile != nil {
		snap, err := svc.RuleFile.Load()
		if err != nil {
			return fmt.Errorf("bootstrap rules: %w", err)
		}
		if err := svc.Rules.Load(snap); err != nil {
			return fmt.Errorf("bootstrap rules: %w", err)
		}
	}

	svc.Evaluator = eligibility.NewEvaluator(c.Clock, svc.Rules, log)
	svc.Dialer = dialing.NewScheduler(c.Clock, gauge)
	svc.Calculator = priority.NewCalculator(cfg.Priority, c.Clock)
	svc.Dispatcher = dispatch.NewDispatcher(dispatch.Dependencies{
		Leads:     repos.Leads,
		Attempts:  repos.Attempts,
		Channels:  channels,
		Gauge:     gauge,
		Spacer:    spacer,
		Triggers:  svc.Rules,
		Publisher: publisher,
		Clock:     c.Clock,
		Logger:    log,
	}, dispatch.Config{Workers: cfg.Dispatch.Workers, MaxWait: cfg.Dispatch.MaxWait})
	svc.Pass = scheduler.NewPass(scheduler.Dependencies{
		Leads:      repos.Leads,
		Attempts:   repos.Attempts,
		Stats:      repos.PassStats,
		Rules:      svc.Rules,
		Evaluator:  svc.Evaluator,
		Dialer:     svc.Dialer,
		Calculator: svc.Calculator,
		Dispatcher: svc.Dispatcher,
		Publisher:  publisher,
		Clock:      c.Clock,
		Logger:     log,
	}, cfg.Scheduler.MaxBatchSize)

	c.components.repositories = repos
	c.components.services = svc
	c.components.channels = channels
	c.components.publisher = publisher
	return nil
}

func (c *Container) buildChannels() (*channel.Registry, error) {
	cfg := c.Config.Channels
	log := c.Logger
	reg := channel.NewRegistry()

	provider := voice.NewSimulator(cfg.Voice)
	reg.Register(domain.ChannelVoice, voice.NewAdapter(provider, cfg.PhoneRegion, cfg.Voice.RequestTimeout, log))

	if cfg.WhatsApp.Enabled() {
		reg.Register(domain.ChannelMessage, whatsapp.NewClient(cfg.WhatsApp, cfg.PhoneRegion, c.Clock, log))
	} else {
		log.Warn("message channel not configured, sends are logged only")
		reg.Register(domain.ChannelMessage, channel.NewLogAdapter(log))
	}

	if cfg.SMTP.Enabled() {
		sender, err := email.NewSender(cfg.SMTP, c.Clock, log)
		if err != nil {
			return nil, fmt.Errorf("bootstrap email channel: %w", err)
		}
		reg.Register(domain.ChannelEmail, sender)
	} else {
		log.Warn("email channel not configured, sends are logged only")
		reg.Register(domain.ChannelEmail, channel.NewLogAdapter(log))
	}
	return reg, nil
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *Repositories {
	return c.components.repositories
}

// Services exposes initialized services.
func (c *Container) Services() *Services {
	return c.components.services
}

// Channels exposes the channel adapter registry.
func (c *Container) Channels() *channel.Registry {
	return c.components.channels
}

// HealthChecks returns a ping per connected backend.
func (c *Container) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if c.Postgres != nil {
		checks["postgres"] = c.Postgres.Ping
	}
	if c.Scylla != nil {
		checks["scylla"] = c.Scylla.Ping
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis.Ping
	}
	return checks
}

// WatchRules reloads the rule store whenever the rule file is changed by
// another process. It blocks until ctx is cancelled.
func (c *Container) WatchRules(ctx context.Context) error {
	svc := c.Services()
	if svc.RuleFile == nil {
		<-ctx.Done()
		return nil
	}
	return svc.RuleFile.Watch(ctx, func(snap rules.Snapshot) {
		if err := svc.Rules.Load(snap); err != nil {
			c.Logger.Error("rule file reload rejected", zap.Error(err))
			return
		}
		c.Logger.Info("rule file reloaded", zap.String("path", svc.RuleFile.Path()))
	})
}

// RunScheduler runs scheduling passes until ctx is cancelled.
func (c *Container) RunScheduler(ctx context.Context) error {
	return scheduler.NewRunner(c.Services().Pass, c.Config.Scheduler, c.Logger).Run(ctx)
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.components.publisher != nil {
		if err := c.components.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// EnsureTopics ensures the outcome and pass topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	if c.Kafka == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return c.Kafka.EnsureTopics(ctx, 12, 1, c.Config.Kafka.OutcomeTopic, c.Config.Kafka.PassTopic)
}
