package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/ahmadzakiakmal/carbon-ledger/repository/models"
	"github.com/cockroachdb/errors"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const pgUniqueViolation = "23505"

// Config selects and tunes the backing database
type Config struct {
	Driver        string // postgres or sqlite
	DSN           string
	MaxAttempts   int
	RetryInterval time.Duration
}

// OperatorRecord is the result of resolving an operator id. Exactly one of
// the two fields is set.
type OperatorRecord struct {
	Hub       *models.HubRecord
	Transport *models.TransportRecord
}

// Repository serves operator reference data
type Repository struct {
	db     *gorm.DB
	logger cmtlog.Logger

	seedMu sync.Mutex
	seeded bool
}

// NewRepository creates a new repository instance
func NewRepository(logger cmtlog.Logger) *Repository {
	return &Repository{logger: logger}
}

type gormWriter struct {
	logger cmtlog.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.logger.Info(fmt.Sprintf(format, args...))
}

func dialector(cfg Config) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres", "":
		return postgres.Open(cfg.DSN), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, apperr.Validation("DB_DRIVER_UNSUPPORTED", "Unsupported database driver", nil).
			WithDetail("driver=%s", cfg.Driver)
	}
}

// ConnectDB establishes database connection, migrates and seeds
func (r *Repository) ConnectDB(ctx context.Context, cfg Config) error {
	dial, err := dialector(cfg)
	if err != nil {
		return err
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 10
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	gormCfg := &gorm.Config{
		Logger: gormlogger.New(gormWriter{r.logger.With("module", "gorm")}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		r.logger.Info("Database connection attempt", "attempt", i+1, "driver", cfg.Driver)
		db, err := gorm.Open(dial, gormCfg)
		if err == nil {
			r.db = db
			break
		}
		lastErr = err
		r.logger.Error("Database connection attempt failed", "attempt", i+1, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	if r.db == nil {
		return apperr.Network("DB_UNREACHABLE", fmt.Sprintf("Failed to connect to database after %d attempts", attempts), lastErr)
	}
	r.logger.Info("✓ Connected to database")

	if err := r.Migrate(); err != nil {
		return errors.Wrap(err, "migration failed")
	}
	return r.EnsureSeeded(ctx)
}

// Migrate performs database schema migrations
func (r *Repository) Migrate() error {
	r.logger.Info("Running database migrations...")

	migrator := r.db.Migrator()
	tables := []interface{}{
		&models.HubRecord{},
		&models.TransportRecord{},
	}
	for _, table := range tables {
		if !migrator.HasTable(table) {
			if err := migrator.CreateTable(table); err != nil {
				return apperr.Internal("DB_MIGRATION_FAILED", "Failed to create table", err)
			}
		}
	}

	r.logger.Info("✓ Database migrations completed")
	return nil
}

// EnsureSeeded loads the reference operators into an empty store. Callers
// are serialized; after one success it is a no-op, after a failure the next
// call tries again.
func (r *Repository) EnsureSeeded(ctx context.Context) error {
	if r.db == nil {
		return errNotConnected()
	}
	r.seedMu.Lock()
	defer r.seedMu.Unlock()
	if r.seeded {
		return nil
	}
	if err := r.seed(ctx); err != nil {
		return err
	}
	r.seeded = true
	return nil
}

func errNotConnected() error {
	return apperr.Internal("DB_NOT_CONNECTED", "Repository is not connected", nil)
}

func (r *Repository) seed(ctx context.Context) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var hubCount, transportCount int64
		if err := tx.Model(&models.HubRecord{}).Count(&hubCount).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.TransportRecord{}).Count(&transportCount).Error; err != nil {
			return err
		}
		if hubCount > 0 || transportCount > 0 {
			r.logger.Info("Seed data already exists, skipping...")
			return nil
		}

		r.logger.Info("Seeding operator reference data...")
		hubs := append([]models.HubRecord(nil), seedHubs...)
		transports := append([]models.TransportRecord(nil), seedTransports...)
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&hubs).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&transports).Error
	})

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		// another instance seeded concurrently
		r.logger.Info("Seed raced with another instance, keeping existing rows")
		return nil
	}
	if err != nil {
		return apperr.Internal("DB_SEED_FAILED", "Failed to seed operator data", err)
	}
	return nil
}

// GetHubData fetches a hub operation category by hocId
func (r *Repository) GetHubData(ctx context.Context, hocID string) (*models.HubRecord, bool, error) {
	if err := r.EnsureSeeded(ctx); err != nil {
		return nil, false, err
	}
	var hub models.HubRecord
	err := r.db.WithContext(ctx).Where("hoc_id = ?", hocID).First(&hub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Internal("DB_ERROR", "Failed to query hub data", err)
	}
	return &hub, true, nil
}

// GetTransportData fetches a transport operation category by tocId
func (r *Repository) GetTransportData(ctx context.Context, tocID string) (*models.TransportRecord, bool, error) {
	if err := r.EnsureSeeded(ctx); err != nil {
		return nil, false, err
	}
	var transport models.TransportRecord
	err := r.db.WithContext(ctx).Where("toc_id = ?", tocID).First(&transport).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Internal("DB_ERROR", "Failed to query transport data", err)
	}
	return &transport, true, nil
}

// Resolve looks id up as a hub first, then as a transport operation. A
// missing id is reported through the boolean, not as an error.
func (r *Repository) Resolve(ctx context.Context, id string) (*OperatorRecord, bool, error) {
	hub, ok, err := r.GetHubData(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return &OperatorRecord{Hub: hub}, true, nil
	}

	transport, ok, err := r.GetTransportData(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return &OperatorRecord{Transport: transport}, true, nil
	}
	return nil, false, nil
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return errNotConnected()
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return apperr.Internal("DB_ERROR", "Failed to access connection pool", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return apperr.Network("DB_UNREACHABLE", "Database ping failed", err)
	}
	return nil
}

// Close releases the connection pool
func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
