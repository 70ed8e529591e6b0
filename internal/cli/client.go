package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"quiz-client/internal/app"
	"quiz-client/internal/config"
	"quiz-client/internal/infra/file"
	"quiz-client/internal/infra/memory"
	pgstore "quiz-client/internal/infra/postgres"
	redisstore "quiz-client/internal/infra/redis"
	"quiz-client/internal/transport/gateway"
)

var (
	errLoginRequired = errors.New("not logged in; run `quiz-client login` first")
	errAdminRequired = errors.New("administrator privileges required")
	errAdminsOnly    = errors.New("not available to administrators; use `quiz-client admin`")
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	apiURL     string
	jsonOut    bool
}

// client is the composition root: one per command invocation.
type client struct {
	cfg     config.Config
	gateway *gateway.Client
	events  *app.Broadcaster
	session *app.SessionManager
	catalog *memory.QuizCatalog
	auth    *app.Authenticator
	views   *app.Views
	admin   *app.AdminConsole
	closers []func()
}

// newClient loads config, opens the session store, wires the services and
// restores any persisted session. Notifications are printed to notices.
func newClient(ctx context.Context, opts *options, notices io.Writer) (*client, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.apiURL != "" {
		cfg.API.BaseURL = opts.apiURL
	}

	c := &client{cfg: cfg}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeStore)

	c.gateway = gateway.New(cfg.API.BaseURL, config.TTLDuration(cfg.API.Timeout, 10*time.Second), store)
	c.events = app.NewBroadcaster()
	c.closers = append(c.closers, printNotices(c.events, notices))

	c.session = app.NewSessionManager(store, c.gateway, app.SessionConfig{
		InactivityTimeout: config.TTLDuration(cfg.Session.InactivityTimeout, app.DefaultInactivityTimeout),
		Notifier:          c.events,
		Navigator:         c.events,
	})
	c.closers = append(c.closers, c.session.Close)
	c.gateway.OnUnauthorized(c.session.Invalidate)

	c.catalog = memory.NewQuizCatalog(c.gateway, config.TTLDuration(cfg.Catalog.TTL, time.Minute))
	c.auth = app.NewAuthenticator(c.gateway, c.session, c.events)
	c.views = app.NewViews(c.catalog, c.gateway, c.gateway, c.session)
	c.admin = app.NewAdminConsole(c.gateway, c.session, c.catalog)

	if err := c.session.Initialize(ctx); err != nil {
		c.close()
		return nil, err
	}
	return c, nil
}

func (c *client) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// require applies the route guard for the view a command stands for.
func (c *client) require(pattern string) error {
	switch d := app.Guard(pattern, c.session.Snapshot()); d {
	case app.Render:
		return nil
	case app.RedirectLogin:
		return errLoginRequired
	case app.RedirectDashboard:
		return errAdminRequired
	case app.RedirectAdmin:
		return errAdminsOnly
	default:
		return fmt.Errorf("%s: session %s", pattern, d)
	}
}

func openStore(ctx context.Context, cfg config.Config) (app.TokenStore, func(), error) {
	switch cfg.Session.Store {
	case config.StoreMemory:
		return memory.NewTokenStore(), func() {}, nil
	case config.StoreFile, "":
		return file.NewTokenStore(cfg.SessionFile()), func() {}, nil
	case config.StoreRedis:
		if cfg.Redis.Addr == "" {
			return nil, nil, fmt.Errorf("session store redis: redis.addr not configured")
		}
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ttl := config.TTLDuration(cfg.Redis.TTL, 0)
		return redisstore.NewTokenStore(rc, cfg.Redis.Prefix, ttl), func() { _ = rc.Close() }, nil
	case config.StorePostgres:
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return pgstore.NewTokenStore(pool, cfg.Session.Namespace), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
}

// printNotices writes every notification to w until the returned stop
// function is called.
func printNotices(events *app.Broadcaster, w io.Writer) func() {
	updates, cancel := events.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range updates {
			if ev.Notification == nil {
				continue
			}
			fmt.Fprintf(w, "[%s] %s\n", ev.Notification.Title, ev.Notification.Message)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
