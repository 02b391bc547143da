package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	identity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/internal/logging"
	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/oauth2"
	"github.com/MrEthical07/goIdentity/store/postgres"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type globalOptions struct {
	configPath  string
	redisAddr   string
	postgresDSN string
	logLevel    string
	out         string
}

func (o *globalOptions) config() (identity.Config, error) {
	if o.configPath == "" {
		return identity.DefaultConfig(), nil
	}
	return identity.LoadConfig(o.configPath)
}

func (o *globalOptions) logger() (*zap.Logger, error) {
	return logging.New(logging.Options{Level: o.logLevel, Service: "identityctl"})
}

func (o *globalOptions) redisClient() redis.UniversalClient {
	if o.redisAddr == "" {
		return nil
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{o.redisAddr}})
}

// deps is an engine together with the resources it was built over.
type deps struct {
	engine *identity.Engine
	log    *zap.Logger
	rdb    redis.UniversalClient
	db     *sql.DB
}

func (d *deps) Close() {
	d.engine.Close()
	if d.rdb != nil {
		_ = d.rdb.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
	_ = d.log.Sync()
}

// open builds an engine over Postgres when a DSN is set, otherwise over
// Redis, otherwise in memory. Notifications go to the Redis queue when
// Redis is available. tune, when given, adjusts the loaded config.
func (o *globalOptions) open(ctx context.Context, tune ...func(*identity.Config)) (*deps, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	for _, fn := range tune {
		fn(&cfg)
	}
	log, err := o.logger()
	if err != nil {
		return nil, err
	}
	d := &deps{log: log, rdb: o.redisClient()}

	b := identity.New().
		WithConfig(cfg).
		WithLogger(log).
		WithOAuth2ProviderFactory(oauth2.New)

	if o.postgresDSN != "" {
		db, err := postgres.Open(o.postgresDSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		d.db = db
		b.WithStore(postgres.New(db, identity.Schema()))
	}
	if d.rdb != nil {
		b.WithRedis(d.rdb).WithNotifier(notify.NewRedisQueue(d.rdb, notify.DefaultQueueKey))
	} else {
		b.WithNotifier(notify.NewLogNotifier(log))
	}

	if d.engine, err = b.Build(); err != nil {
		if d.db != nil {
			_ = d.db.Close()
		}
		return nil, err
	}
	return d, nil
}

// admin is the request identity for CLI operations.
var admin = &identity.Request{Privileged: true, UserAgent: "identityctl"}

func (o *globalOptions) print(w io.Writer, v any, text func(io.Writer)) error {
	if o.out == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
