// Package app wires configuration into the stores, clients and services shared by the
// HTTP server and the flexctl job runner.
package app

import (
	"database/sql"

	"flexile-backend/internal/application/billing"
	"flexile-backend/internal/application/emails"
	"flexile-backend/internal/application/equity"
	"flexile-backend/internal/application/invoices"
	"flexile-backend/internal/application/liquidation"
	"flexile-backend/internal/application/payouts"
	"flexile-backend/internal/config"
	"flexile-backend/internal/infrastructure/database"
	"flexile-backend/internal/infrastructure/locker"
	"flexile-backend/internal/infrastructure/queue"
	"flexile-backend/internal/infrastructure/wise"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Container holds everything built from Config. DB-backed services are nil when no
// database is configured.
type Container struct {
	Config   *config.Config
	DB       *gorm.DB
	Rdb      *redis.Client
	Locker   locker.Locker
	Notifier payouts.Notifier
	Wise     *wise.Client

	Equity      *equity.Service
	Invoices    *invoices.Service
	Liquidation *liquidation.Service
	Payouts     *payouts.Orchestrator
	Billing     *billing.Service
}

// New builds the container. Redis and the database are only dialled lazily by their
// clients, so a missing server surfaces on first use rather than here.
func New(cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg, Locker: locker.NewLocalLocker()}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		c.Rdb = redis.NewClient(opt)
		c.Locker = &locker.RedisLocker{Rdb: c.Rdb}
	} else {
		log.Warn().Msg("REDIS_URL not set: using in-process locks and no traffic stats")
	}

	c.Notifier = notifierFor(cfg)
	c.Wise = wise.NewClient(cfg.WiseAPIURL, cfg.WiseAPIKey, cfg.WiseProfileID)

	if cfg.DatabaseURL == "" {
		log.Warn().Msg("database URL not set: stateful routes are disabled")
		return c, nil
	}
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	c.DB = db
	c.buildServices()
	return c, nil
}

// WithDB builds the services on an already opened database. Used by tests and tools.
func WithDB(cfg *config.Config, db *gorm.DB, l locker.Locker) *Container {
	c := &Container{Config: cfg, DB: db, Locker: l, Notifier: notifierFor(cfg)}
	c.Wise = wise.NewClient(cfg.WiseAPIURL, cfg.WiseAPIKey, cfg.WiseProfileID)
	c.buildServices()
	return c
}

func (c *Container) buildServices() {
	cfg := c.Config
	c.Equity = &equity.Service{DB: c.DB}
	c.Invoices = &invoices.Service{DB: c.DB, Equity: c.Equity}
	c.Liquidation = &liquidation.Service{
		DB:                c.DB,
		Locker:            c.Locker,
		LockTTL:           cfg.LockTTL,
		SnapshotTxOptions: snapshotTxOptions(c.DB),
	}
	c.Payouts = &payouts.Orchestrator{
		DB:                  c.DB,
		Processor:           c.Wise,
		Locker:              c.Locker,
		SanctionedCountries: cfg.SanctionedCountries,
		LockTTL:             cfg.LockTTL,
	}
	c.Billing = &billing.Service{
		DB:      c.DB,
		Locker:  c.Locker,
		Charger: &billing.StripeCharger{SecretKey: cfg.StripeSecretKey},
		LockTTL: cfg.LockTTL,
	}
}

// snapshotTxOptions gives Postgres a repeatable-read snapshot for cap-table reads.
// SQLite transactions are already serializable and reject the option.
func snapshotTxOptions(db *gorm.DB) *sql.TxOptions {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
}

// notifierFor prefers the broker, then inline email, then a log line.
func notifierFor(cfg *config.Config) payouts.Notifier {
	switch {
	case cfg.RabbitMQURL != "":
		return &payouts.QueueNotifier{Publisher: queue.NewPublisher(cfg.RabbitMQURL)}
	case cfg.SendinblueAPIKey != "":
		return &payouts.EmailNotifier{Sender: &emails.BrevoClient{APIKey: cfg.SendinblueAPIKey, MailFrom: cfg.MailFrom}}
	default:
		return payouts.LogNotifier{}
	}
}

// Close releases the Redis and database connections.
func (c *Container) Close() {
	if c.Rdb != nil {
		_ = c.Rdb.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
