package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	auth "github.com/mind-engage/quizgate/internal/auth/middleware"
	"github.com/mind-engage/quizgate/internal/config"
	"github.com/mind-engage/quizgate/internal/db"
	"github.com/mind-engage/quizgate/internal/enrollment"
	"github.com/mind-engage/quizgate/internal/progress"
	"github.com/mind-engage/quizgate/internal/quiz"
	syncx "github.com/mind-engage/quizgate/internal/sync"
)

type userStore interface {
	auth.Users
	Upsert(ctx context.Context, u auth.User) error
}

// catalog receives the course structure from the seed fixture.
type catalog interface {
	AddModule(ctx context.Context, moduleID, courseID string, position int) error
	Enroll(ctx context.Context, enrollmentID, courseID, studentID string, createdAtMillis int64) error
}

type unlockStore interface {
	progress.Unlocker
	Unlocked(ctx context.Context, enrollmentID, moduleID string) (bool, error)
}

// backend bundles the stores selected by DB_DRIVER.
type backend struct {
	db      *sql.DB // nil in memory mode
	redis   *redis.Client
	store   quiz.Store
	users   userStore
	unlocks unlockStore
	catalog catalog
	cache   *enrollment.CachedChecker // nil without REDIS_ADDR
	guard   *enrollment.Guard
	journal *syncx.EventRepo
}

type memoryCatalog struct {
	c *enrollment.MemoryChecker
}

func (m memoryCatalog) AddModule(_ context.Context, moduleID, courseID string, _ int) error {
	m.c.AddModule(moduleID, courseID)
	return nil
}

func (m memoryCatalog) Enroll(_ context.Context, enrollmentID, courseID, studentID string, _ int64) error {
	m.c.Enroll(enrollmentID, courseID, studentID)
	return nil
}

func openBackend(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*backend, error) {
	if cfg.DBDriver == "memory" {
		log.Warn("memory driver: state is lost on restart, seed users and enrollments with SEED_FILE")
		checker := enrollment.NewMemoryChecker()
		return &backend{
			store:   quiz.NewInMemoryStore(),
			users:   auth.NewMemoryUsers(),
			unlocks: progress.NewMemoryUnlocks(),
			catalog: memoryCatalog{c: checker},
			guard:   enrollment.NewGuard(checker),
		}, nil
	}

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	be := &backend{
		db:      dbh,
		store:   quiz.NewSQLStore(dbh),
		users:   auth.NewSQLUsers(dbh),
		unlocks: progress.NewSQLUnlocks(dbh),
		journal: syncx.NewEventRepo(dbh, cfg.SiteID),
	}

	sqlChecker := enrollment.NewSQLChecker(dbh)
	be.catalog = sqlChecker
	var checker enrollment.Checker = sqlChecker
	if cfg.RedisAddr != "" {
		be.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := be.redis.Ping(ctx).Err(); err != nil {
			// the cache falls through on errors, so keep going
			log.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis unreachable")
		}
		be.cache = enrollment.NewCachedChecker(checker, be.redis, cfg.EnrollmentCacheTTL, log)
		checker = be.cache
	}
	be.guard = enrollment.NewGuard(checker)
	return be, nil
}

func (b *backend) Ping(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	return b.db.PingContext(ctx)
}

func (b *backend) Close() {
	if b.redis != nil {
		b.redis.Close()
	}
	if b.db != nil {
		b.db.Close()
	}
}
