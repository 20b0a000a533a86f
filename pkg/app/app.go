// Package app builds the parley object graph from a loaded configuration.
// Both the API server and the CLI commands start from an App.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/parley/pkg/analyzer"
	"github.com/papercomputeco/parley/pkg/broadcast"
	"github.com/papercomputeco/parley/pkg/completion"
	"github.com/papercomputeco/parley/pkg/conclusion"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/conversations"
	"github.com/papercomputeco/parley/pkg/credentials"
	"github.com/papercomputeco/parley/pkg/dotdir"
	"github.com/papercomputeco/parley/pkg/engine"
	"github.com/papercomputeco/parley/pkg/eventstream"
	kafkapub "github.com/papercomputeco/parley/pkg/eventstream/kafka"
	"github.com/papercomputeco/parley/pkg/eventstream/nop"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/matching"
	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/progress"
	progressmemory "github.com/papercomputeco/parley/pkg/progress/memory"
	progressredis "github.com/papercomputeco/parley/pkg/progress/redis"
	"github.com/papercomputeco/parley/pkg/proxychat"
	"github.com/papercomputeco/parley/pkg/storage"
	"github.com/papercomputeco/parley/pkg/storage/inmemory"
	"github.com/papercomputeco/parley/pkg/storage/postgres"
	"github.com/papercomputeco/parley/pkg/storage/sqlite"
	"github.com/papercomputeco/parley/pkg/summary"
	"github.com/papercomputeco/parley/pkg/worker"
)

// Storage driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Provider names for events and progress.
const (
	EventsNone     = "none"
	EventsKafka    = "kafka"
	ProgressMemory = "memory"
	ProgressRedis  = "redis"
)

// Options carries values that do not come from the config file.
type Options struct {
	// ConfigDir overrides the .parley/ state directory.
	ConfigDir string

	Logger *slog.Logger

	// Completer replaces the configured completion provider.
	Completer completion.Completer

	// Sender replaces the proxy chat adapter.
	Sender engine.Sender

	// Publisher replaces the configured event publisher.
	Publisher eventstream.Publisher
}

// App is the wired set of parley services. Close releases everything New
// opened, in reverse order.
type App struct {
	Config        *config.Config
	Store         storage.Driver
	Progress      progress.Store
	Events        *worker.Pool
	Engine        *engine.Engine
	Coordinator   *broadcast.Coordinator
	Summaries     *summary.Generator
	Conversations *conversations.Service
	Analyzer      *analyzer.Analyzer
	Matches       *matching.Ranker

	logger  *slog.Logger
	closers []func() error
}

// New builds an App from cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	a := &App{Config: cfg, logger: log}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	store, err := NewStore(ctx, cfg.Storage, opts.ConfigDir, log)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	a.Progress, err = newProgressStore(ctx, cfg.Progress)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Progress.Close)

	publisher := opts.Publisher
	if publisher == nil {
		publisher, err = newPublisher(cfg.Events, log)
		if err != nil {
			return nil, err
		}
	}
	a.Events, err = worker.NewPool(&worker.Config{
		Publisher:  publisher,
		NumWorkers: cfg.Events.Workers,
		QueueSize:  cfg.Events.QueueSize,
		Logger:     log.With("component", "events"),
	})
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("starting event workers: %w", err)
	}
	a.closers = append(a.closers, a.Events.Close)

	completer := opts.Completer
	if completer == nil {
		completer, err = newCompleter(cfg.Completion, opts.ConfigDir, log)
		if err != nil {
			return nil, err
		}
	}

	sender := opts.Sender
	if sender == nil {
		sender = NewSender(cfg, store, log)
	}

	callTimeout := config.Duration(cfg.Engine.CallTimeout, engine.DefaultCallTimeout)

	a.Engine, err = engine.New(engine.Config{
		Sender:      sender,
		Detector:    conclusion.NewAIDetector(completer, log.With("component", "conclusion")),
		MaxRounds:   cfg.Engine.MaxRounds,
		CallTimeout: callTimeout,
		Logger:      log.With("component", "engine"),
	})
	if err != nil {
		return nil, err
	}

	a.Coordinator, err = broadcast.New(broadcast.Config{
		Store:    store,
		Runner:   a.Engine,
		Limit:    cfg.Engine.PeerLimit,
		Progress: progress.NewTracker(a.Progress),
		Events:   a.Events,
		Logger:   log.With("component", "broadcast"),
	})
	if err != nil {
		return nil, err
	}

	a.Summaries, err = summary.New(summary.Config{
		Store:     store,
		Completer: completer,
		Events:    a.Events,
		Logger:    log.With("component", "summary"),
	})
	if err != nil {
		return nil, err
	}

	a.Conversations, err = conversations.New(conversations.Config{
		Store:       store,
		Sender:      sender,
		CallTimeout: callTimeout,
		Logger:      log.With("component", "conversations"),
	})
	if err != nil {
		return nil, err
	}

	a.Analyzer, err = analyzer.New(completer, log.With("component", "analyzer"))
	if err != nil {
		return nil, err
	}

	a.Matches, err = matching.New(matching.Config{
		Store:     store,
		Completer: completer,
		Analyzer:  a.Analyzer,
		Logger:    log.With("component", "matching"),
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// CreateRequest stores a new pending request for an existing member.
func (a *App) CreateRequest(ctx context.Context, requesterID, content string) (*network.Request, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, network.Invalid("requester_id", "is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, network.Invalid("content", "is required")
	}
	if _, err := a.Store.GetUser(ctx, requesterID); err != nil {
		if storage.IsNotFound(err) {
			return nil, network.Invalid("requester_id", "unknown user "+requesterID)
		}
		return nil, network.Persistence("load requester", err)
	}

	req := &network.Request{UserID: requesterID, Content: content}
	if err := a.Store.CreateRequest(ctx, req); err != nil {
		return nil, network.Persistence("create request", err)
	}
	return req, nil
}

// Close releases every resource New opened. Pending events are flushed
// before the store closes.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewStore opens the configured record store.
func NewStore(ctx context.Context, cfg config.StorageConfig, configDir string, log *slog.Logger) (storage.Driver, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite:
		path := cfg.SQLitePath
		if path == "" {
			var err error
			path, err = dotdir.NewManager().Path(configDir, config.DefaultSQLiteFile())
			if err != nil {
				return nil, err
			}
		}
		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		log.Debug("using sqlite storage", "path", path)
		return driver, nil

	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres driver")
		}
		driver, err := postgres.NewDriver(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		log.Debug("using postgres storage")
		return driver, nil

	case DriverMemory:
		log.Debug("using in-memory storage")
		return inmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q (available: sqlite, postgres, memory)", cfg.Driver)
	}
}

func newProgressStore(ctx context.Context, cfg config.ProgressConfig) (progress.Store, error) {
	ttl := config.Duration(cfg.TTL, progress.DefaultTTL)

	switch strings.ToLower(cfg.Provider) {
	case "", ProgressMemory:
		return progressmemory.NewStore(ttl), nil
	case ProgressRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("progress.redis_addr is required for the redis progress store")
		}
		return progressredis.NewStore(ctx, progressredis.Config{Addr: cfg.RedisAddr, TTL: ttl})
	default:
		return nil, fmt.Errorf("unknown progress provider %q (available: memory, redis)", cfg.Provider)
	}
}

func newPublisher(cfg config.EventsConfig, log *slog.Logger) (eventstream.Publisher, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", EventsNone:
		return nop.NewPublisher(log.With("component", "events")), nil
	case EventsKafka:
		return kafkapub.NewPublisher(kafkapub.Config{
			Brokers: cfg.BrokerList(),
			Topic:   cfg.Topic,
			Logger:  log.With("component", "kafka"),
		})
	default:
		return nil, fmt.Errorf("unknown events provider %q (available: none, kafka)", cfg.Provider)
	}
}

func newCompleter(cfg config.CompletionConfig, configDir string, log *slog.Logger) (completion.Completer, error) {
	credMgr, err := credentials.NewManager(configDir)
	if err != nil {
		return nil, fmt.Errorf("opening credentials: %w", err)
	}
	return completion.New(completion.Config{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
		CredMgr:  credMgr,
		Timeout:  config.Duration(cfg.Timeout, 0),
		Logger:   log.With("component", "completion"),
	})
}

// NewSender builds the proxy chat adapter that authenticates as each member.
func NewSender(cfg *config.Config, store storage.Driver, log *slog.Logger) *proxychat.Adapter {
	client := proxychat.NewClient(proxychat.ClientConfig{
		BaseURL:           cfg.Chat.BaseURL,
		Timeout:           config.Duration(cfg.Chat.Timeout, proxychat.DefaultTimeout),
		RequestsPerSecond: cfg.Chat.RequestsPerSecond,
		Logger:            log.With("component", "proxychat"),
	})
	resolver := credentials.NewResolver(credentials.ResolverConfig{
		Refresher: credentials.NewOAuthClient(credentials.OAuthConfig{
			BaseURL:      cfg.OAuth.BaseURL,
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
		}),
		Store:  store,
		Logger: log.With("component", "credentials"),
	})
	return proxychat.NewAdapter(client, resolver)
}
