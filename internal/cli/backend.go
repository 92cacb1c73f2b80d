package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"quiz-progress-service/internal/app"
	"quiz-progress-service/internal/config"
	"quiz-progress-service/internal/docstore"
	"quiz-progress-service/internal/infra/memory"
	mongostore "quiz-progress-service/internal/infra/mongo"
	pgstore "quiz-progress-service/internal/infra/postgres"
	"quiz-progress-service/internal/infra/rabbitmq"
	redisstore "quiz-progress-service/internal/infra/redis"
)

// backend holds the connections selected by the config.
type backend struct {
	store     docstore.Store
	cache     app.TotalsCache
	publisher app.EventPublisher
	closers   []func()
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	b := &backend{}
	if err := b.openStore(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openPublisher(cfg); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backend) openStore(ctx context.Context, cfg config.Config) error {
	log := config.WithContext(ctx).WithField("driver", cfg.Store.Driver)
	cacheTTL := config.TTLDuration(cfg.Stats.CacheTTL, 0)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
	}

	switch cfg.Store.Driver {
	case config.DriverMemory, "":
		b.store = memory.NewStore()
	case config.DriverRedis:
		if redisClient == nil {
			return fmt.Errorf("redis addr not configured")
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		b.store = redisstore.NewStore(redisClient)
	case config.DriverPostgres:
		if cfg.Postgres.URL == "" {
			return fmt.Errorf("postgres url not configured")
		}
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("postgres connect: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		b.store = pgstore.NewStore(pool)
	case config.DriverMongo:
		store, err := b.openMongo(ctx, cfg)
		if err != nil {
			return err
		}
		if err := store.EnsureIndexes(ctx, app.CollectionKinds()...); err != nil {
			return err
		}
		b.store = store
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if cacheTTL > 0 {
		if redisClient != nil {
			b.cache = redisstore.NewTotalsCache(redisClient, cacheTTL)
		} else {
			b.cache = memory.NewTotalsCache(cacheTTL)
		}
	}
	log.WithField("cache_ttl", cacheTTL.String()).Info("document store ready")
	return nil
}

func (b *backend) openMongo(ctx context.Context, cfg config.Config) (*mongostore.Store, error) {
	if cfg.Mongo.URI == "" {
		return nil, fmt.Errorf("mongo uri not configured")
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	b.closers = append(b.closers, func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	})
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return mongostore.NewStore(client.Database(cfg.Mongo.Database)), nil
}

func (b *backend) openPublisher(cfg config.Config) error {
	if cfg.AMQP.URL == "" {
		b.publisher = app.NoopPublisher{}
		return nil
	}
	publisher, err := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, func() { _ = publisher.Close() })
	b.publisher = publisher
	return nil
}

// Close releases connections in reverse order of opening.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

func serviceOptions(cfg config.Config, b *backend) app.Options {
	return app.Options{
		Shards:          cfg.Stats.Shards,
		BatchSize:       cfg.Stats.BatchSize,
		Cache:           b.cache,
		Publisher:       b.publisher,
		DispatchQueue:   cfg.Stats.DispatchQueue,
		DispatchWorkers: cfg.Stats.DispatchWorkers,
		AdminEmails:     cfg.Profiles.AdminEmails,
		TesterEmails:    cfg.Profiles.TesterEmails,
		TrialDays:       cfg.Profiles.TrialDays,
	}
}
