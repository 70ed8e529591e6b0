package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-client/internal/app"
	"quiz-client/internal/domain"
	pgstore "quiz-client/internal/infra/postgres"
	pgmigrations "quiz-client/internal/infra/postgres/migrations"
	infraredis "quiz-client/internal/infra/redis"
)

func TestPostgresSessionSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	store := pgstore.NewTokenStore(pool, "kiosk-1")
	other := pgstore.NewTokenStore(pool, "kiosk-2")
	exerciseRestart(t, ctx, store)

	if _, ok, err := other.Get(ctx, domain.KeyToken); ok || err != nil {
		t.Fatalf("expected namespaces to be isolated, ok=%v err=%v", ok, err)
	}
}

func TestRedisSessionSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	client, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	exerciseRestart(t, ctx, infraredis.NewTokenStore(client, "quiz-client:", time.Hour))
}

// exerciseRestart logs in with one manager, restores with a second one as a
// new process would, then logs out and checks every key is gone.
func exerciseRestart(t *testing.T, ctx context.Context, store app.TokenStore) {
	t.Helper()
	user := domain.User{ID: "u1", Username: "alice", Email: "alice@example.com", Roles: []string{"ROLE_USER"}}
	expiry := time.Now().Add(time.Hour).Truncate(time.Millisecond)

	first := app.NewSessionManager(store, nil, app.SessionConfig{})
	defer first.Close()
	if err := first.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := first.Login(ctx, "tok", user); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := first.ArmExpiry(ctx, expiry); err != nil {
		t.Fatalf("arm expiry: %v", err)
	}

	second := app.NewSessionManager(store, nil, app.SessionConfig{})
	defer second.Close()
	if err := second.Initialize(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	restored, ok := second.User()
	if !ok || restored.Username != "alice" {
		t.Fatalf("expected alice restored, got %+v ok=%v", restored, ok)
	}
	if !second.Expiry().Equal(expiry) {
		t.Fatalf("expected expiry %v, got %v", expiry, second.Expiry())
	}

	if err := second.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	for _, key := range domain.SessionKeys {
		if _, ok, err := store.Get(ctx, key); ok || err != nil {
			t.Fatalf("expected %s cleared, ok=%v err=%v", key, ok, err)
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

// migrateSchema applies the session store migrations. Postgres may accept
// connections a moment before it is ready for queries, so Init is retried.
func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	var err error
	for i := 0; i < 10; i++ {
		if err = migrator.Init(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
