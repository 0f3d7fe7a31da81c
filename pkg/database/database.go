package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
)

// DB represents the database connection with connection pooling
type DB struct {
	*sql.DB
	config *Config
}

// Config is read from DB_* environment variables.
type Config struct {
	Host            string        `envconfig:"HOST" default:"localhost"`
	Port            int           `envconfig:"PORT" default:"5432"`
	User            string        `envconfig:"USER" default:"postgres"`
	Password        string        `envconfig:"PASSWORD"`
	Database        string        `envconfig:"NAME" default:"marketgql"`
	SSLMode         string        `envconfig:"SSLMODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"5m"`
	ConnMaxIdleTime time.Duration `envconfig:"CONN_MAX_IDLE_TIME" default:"5m"`
	// Enabled is false when DB_ENABLED=false; services then skip archiving.
	Enabled bool `envconfig:"ENABLED" default:"true"`
}

// NewConfig creates a new database configuration from environment variables
func NewConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("db", &c); err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	return &c, nil
}

// DSN renders the lib/pq connection string.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// New creates a new database connection with connection pooling
func New(ctx context.Context, config *Config) (*DB, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Log.Info("database connected successfully",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("database", config.Database))

	return &DB{DB: db, config: config}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	logger.Log.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := db.PingContext(ctx)
	metrics.DatabaseHealthCheckDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DatabaseHealthCheckErrors.Inc()
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Transaction runs fn in a transaction, committing when it returns nil.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = fn(tx)
	return err
}

// observe records timing for one repository call.
func observe(operation string, start time.Time, err error) {
	metrics.DatabaseOperationDuration.WithLabelValues(operation, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues(operation).Inc()
	}
}
