package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/felixgeelhaar/streakline/internal/config"
	"github.com/felixgeelhaar/streakline/internal/curriculum"
	"github.com/felixgeelhaar/streakline/internal/domain"
	"github.com/felixgeelhaar/streakline/internal/judge"
	"github.com/felixgeelhaar/streakline/internal/ledger"
	"github.com/felixgeelhaar/streakline/internal/llm"
	"github.com/felixgeelhaar/streakline/internal/progress"
	"github.com/felixgeelhaar/streakline/internal/queue"
	"github.com/felixgeelhaar/streakline/internal/rewards"
	"github.com/felixgeelhaar/streakline/internal/sandbox"
	"github.com/felixgeelhaar/streakline/internal/session"
	"github.com/felixgeelhaar/streakline/internal/stats"
	"github.com/felixgeelhaar/streakline/internal/storage/postgres"
	"github.com/felixgeelhaar/streakline/internal/storage/sqlite"
	"github.com/felixgeelhaar/streakline/internal/streak"
)

// userStore is what both drivers' user stores provide.
type userStore interface {
	progress.UserReader
	streak.Store
	stats.UserReader
}

// sessionStore is what both drivers' session stores provide.
type sessionStore interface {
	session.Store
	stats.ActivityReader
}

// Storage is an opened store of either driver.
type Storage struct {
	Driver   string
	Progress progress.Store
	Users    userStore
	Ledger   ledger.Store
	Rewards  rewards.Store
	Sessions sessionStore

	ping    func(ctx context.Context) error
	migrate func(ctx context.Context) error
	close   func() error
}

// OpenStorage connects to the configured database without migrating it.
func OpenStorage(ctx context.Context, cfg *config.LocalConfig) (*Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		return &Storage{
			Driver:   config.DriverSQLite,
			Progress: sqlite.NewProgressStore(db),
			Users:    sqlite.NewUserStore(db),
			Ledger:   sqlite.NewLedgerStore(db),
			Rewards:  sqlite.NewRewardStore(db),
			Sessions: sqlite.NewSessionStore(db),
			ping:     db.PingContext,
			migrate:  func(context.Context) error { return db.Migrate() },
			close:    db.Close,
		}, nil

	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		return &Storage{
			Driver:   config.DriverPostgres,
			Progress: postgres.NewProgressStore(db),
			Users:    postgres.NewUserStore(db),
			Ledger:   postgres.NewLedgerStore(db),
			Rewards:  postgres.NewRewardStore(db),
			Sessions: postgres.NewSessionStore(db),
			ping:     db.Ping,
			migrate:  db.Migrate,
			close:    db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// Ping implements Pinger.
func (s *Storage) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Migrate applies pending schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	if err := s.migrate(ctx); err != nil {
		return fmt.Errorf("migrate %s: %w", s.Driver, err)
	}
	return nil
}

// Close releases the connection.
func (s *Storage) Close() error {
	return s.close()
}

// Services is the wired application: storage, curriculum, judge, cascade
// and the services on top of them.
type Services struct {
	Storage    *Storage
	Curriculum *curriculum.Registry
	Events     *domain.EventDispatcher
	Tracker    *progress.Tracker
	Ledger     *ledger.Service
	Streaks    *streak.Tracker
	Sessions   *session.Service
	Catalog    *rewards.Catalog
	Engine     *rewards.Engine
	Stats      *stats.Service

	consumer *queue.Consumer
	closers  []io.Closer
}

// OpenServices opens and migrates storage, loads the curriculum and builds
// every service from cfg. In async cascade mode the tracker publishes to
// AMQP and StartConsumer runs the reward engine on the other end.
func OpenServices(ctx context.Context, cfg *config.LocalConfig) (*Services, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	svc := &Services{Events: domain.NewEventDispatcher()}
	opened := false
	defer func() {
		if !opened {
			svc.Close()
		}
	}()

	store, err := OpenStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	svc.Storage = store
	svc.closers = append(svc.closers, store)

	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}

	svc.Curriculum = curriculum.NewRegistry(curriculum.NewLoader(cfg.Curriculum.Path))
	if err := svc.Curriculum.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load curriculum: %w", err)
		}
		slog.Warn("curriculum directory not found, starting empty", "path", cfg.Curriculum.Path)
	}
	modules, lessons, exercises := svc.Curriculum.Stats()
	slog.Info("curriculum loaded", "modules", modules, "lessons", lessons, "exercises", exercises)

	j, err := svc.buildJudge(cfg)
	if err != nil {
		return nil, err
	}

	svc.Ledger = ledger.NewService(store.Ledger)
	svc.Ledger.SetEventDispatcher(svc.Events)

	svc.Streaks = streak.NewTracker(store.Users)
	svc.Streaks.SetEventDispatcher(svc.Events)

	svc.Engine = rewards.NewEngine(store.Rewards, svc.Curriculum, svc.Streaks, policy)
	svc.Engine.SetEventDispatcher(svc.Events)
	svc.Catalog = rewards.NewCatalog(store.Rewards)

	if cfg.Rewards.SeedFile != "" {
		if err := seedRewards(ctx, svc.Catalog, cfg.Rewards.SeedFile); err != nil {
			return nil, err
		}
	}

	var cascade progress.Cascade = svc.Engine
	if cfg.Rewards.CascadeMode == config.CascadeAsync {
		conn, err := queue.NewConnection(cfg.Rewards.AMQPURL)
		if err != nil {
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		svc.closers = append(svc.closers, conn)
		cascade = queue.NewProducer(conn)
		svc.consumer = queue.NewConsumer(conn, svc.Engine, queue.ConsumerConfig{Workers: cfg.Rewards.Workers})
	}

	svc.Tracker = progress.NewTracker(store.Progress, store.Users, svc.Curriculum, j, cascade, policy)
	svc.Tracker.SetEventDispatcher(svc.Events)

	svc.Sessions = session.NewService(store.Sessions, svc.Streaks, svc.Engine)
	svc.Stats = stats.NewService(store.Progress, store.Users, store.Sessions, svc.Curriculum)

	svc.Events.SubscribeAll(func(ev domain.Event) {
		slog.Debug("event", "type", ev.EventType(), "id", ev.EventID())
	})

	opened = true
	return svc, nil
}

func (svc *Services) buildJudge(cfg *config.LocalConfig) (*judge.Dispatcher, error) {
	opts := []judge.Option{judge.WithTimeout(cfg.JudgeTimeout())}

	if sem := cfg.Judge.Semantic; sem.Enabled {
		provider, err := llm.New(sem.LLM)
		if err != nil {
			return nil, fmt.Errorf("semantic judge: %w", err)
		}
		resilient := llm.NewResilientProvider(provider, sem.Resilience)
		svc.closers = append(svc.closers, resilient)
		opts = append(opts, judge.WithSemantic(judge.NewSemanticJudge(resilient, sem.LLM.Model)))
		slog.Info("semantic judge enabled", "provider", provider.Name(), "model", sem.LLM.Model)
	}

	if cfg.Judge.Sandbox.Enabled {
		backend, err := sandbox.NewDockerBackend()
		if err != nil {
			return nil, fmt.Errorf("sandbox: %w", err)
		}
		svc.closers = append(svc.closers, backend)
		opts = append(opts, judge.WithRunner(sandbox.NewRunner(backend, cfg.Judge.Sandbox.Limits)))
		slog.Info("code sandbox enabled")
	}

	return judge.New(opts...), nil
}

func seedRewards(ctx context.Context, catalog *rewards.Catalog, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read reward seed: %w", err)
	}
	res, err := catalog.Seed(ctx, data)
	if err != nil {
		return fmt.Errorf("seed rewards: %w", err)
	}
	slog.Info("rewards seeded", "file", path, "created", res.Created, "updated", res.Updated)
	return nil
}

// StartConsumer runs the cascade consumer in async mode. It is a no-op in
// sync mode.
func (svc *Services) StartConsumer(ctx context.Context) error {
	if svc.consumer == nil {
		return nil
	}
	return svc.consumer.Start(ctx)
}

// Close stops the consumer and releases every resource in reverse order.
func (svc *Services) Close() error {
	if svc.consumer != nil {
		svc.consumer.Stop()
	}
	var errs []error
	for i := len(svc.closers) - 1; i >= 0; i-- {
		if err := svc.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	svc.closers = nil
	return errors.Join(errs...)
}
