// Package bootstrap wires the dependency graph shared by every correlator
// binary: database, Redis, stores, the state machine service, and the
// Prometheus registry. Each cmd/ entrypoint calls New and then attaches
// whatever transport (HTTP, SNMP, queue pool, scheduler) it needs.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/fluxgate/correlator/internal/correlator"
	"github.com/fluxgate/correlator/internal/dispatcher"
	"github.com/fluxgate/correlator/internal/erroraccum"
	"github.com/fluxgate/correlator/internal/eventrecord"
	"github.com/fluxgate/correlator/internal/eventstore"
	"github.com/fluxgate/correlator/internal/ingresslog"
	"github.com/fluxgate/correlator/internal/logging"
	"github.com/fluxgate/correlator/internal/metrics"
	"github.com/fluxgate/correlator/internal/platform/database"
	"github.com/fluxgate/correlator/internal/platform/migrations"
	"github.com/fluxgate/correlator/internal/purge"
	"github.com/fluxgate/correlator/internal/queue"
	"github.com/fluxgate/correlator/internal/rules"
	"github.com/fluxgate/correlator/internal/ticketclient"
	"github.com/fluxgate/correlator/pkg/config"
)

// App bundles every dependency a correlator binary might need. Not every
// binary uses every field.
type App struct {
	Config  *config.Config
	Log     *logging.Logger
	DB      *sql.DB
	SQLX    *sqlx.DB
	Redis   *redis.Client
	Metrics *metrics.Metrics

	Docs        eventstore.Store
	Rules       *rules.Resolver
	Records     *eventrecord.Store
	IngressLogs *ingresslog.Store
	Errs        *erroraccum.Accumulator
	Tickets     *ticketclient.Client
	Queue       *queue.RedisQueue
	Correlator  *correlator.Service
	Purge       *purge.Jobs
}

// New loads configuration and wires every shared dependency. service names
// the binary for logging and Prometheus const labels (e.g. "correlator-api").
func New(ctx context.Context, service string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logging.New(service, cfg.Logging.Level, cfg.Logging.Format)

	db, err := database.Open(ctx, cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	if cfg.Database.MigrateOnStart {
		if err := migrations.Apply(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	sqlxDB := sqlx.NewDb(db, "postgres")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	m := metrics.New(service)

	docs := eventstore.NewPGStore(db)
	resolver := rules.New(sqlxDB)
	records := eventrecord.New(sqlxDB)
	ingressLogs := ingresslog.New(sqlxDB)
	errs := erroraccum.New(sqlxDB)
	tickets := ticketclient.New(
		cfg.Ticket.BaseURL, cfg.Ticket.AppToken, cfg.Ticket.UserToken, cfg.Ticket.EntityUID,
		time.Duration(cfg.Ticket.TimeoutSec)*time.Second,
	)
	taskQueue := queue.New(rdb)

	svc := correlator.New(docs, resolver, tickets, records, ingressLogs, errs, taskQueue, log, cfg.Server.Environment)

	purgeJobs := purge.New(records, ingressLogs, docs, log)

	return &App{
		Config: cfg, Log: log, DB: db, SQLX: sqlxDB, Redis: rdb, Metrics: m,
		Docs: docs, Rules: resolver, Records: records, IngressLogs: ingressLogs,
		Errs: errs, Tickets: tickets, Queue: taskQueue, Correlator: svc, Purge: purgeJobs,
	}, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	_ = a.Redis.Close()
	_ = a.DB.Close()
}

// Dispatcher constructs a dispatcher.Dispatcher wired against this App's
// stores, for binaries that run the state-machine task loop.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return dispatcher.New(a.Records, a.Errs, a.Queue, a.Log)
}
