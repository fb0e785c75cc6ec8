package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"enterprise-kb/internal/config"
	mysqlClient "enterprise-kb/internal/platform/mysql"
	qdrantClient "enterprise-kb/internal/platform/qdrant"
	rabbitmqClient "enterprise-kb/internal/platform/rabbitmq"
	redisClient "enterprise-kb/internal/platform/redis"
	"enterprise-kb/internal/vectorindex"
	"enterprise-kb/internal/worker"
)

type App struct {
	Config      *config.Config
	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	Index       vectorindex.Index
	Services    *Services
	IndexWorker *worker.IndexWorker

	StartedAt time.Time
}

// Options tunes what New starts. The CLI uses it to skip the queue consumer.
type Options struct {
	StartWorker bool
	Backends    Backends
}

func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{Config: cfg, StartedAt: time.Now()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.MySQL, err = mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlClient.Migrate(a.MySQL); err != nil {
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		a.Redis, err = redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
	}

	a.Index, err = NewVectorIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var publisher *rabbitmqClient.IndexPublisher
	if cfg.RabbitMQ.URL != "" {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return nil, err
		}
		publisher = rabbitmqClient.NewIndexPublisher(a.MQConn, cfg.RabbitMQ.IndexQueue)
	}

	deps := Deps{
		Config:   cfg,
		DB:       a.MySQL,
		Redis:    a.Redis,
		Index:    a.Index,
		Backends: opts.Backends,
	}
	if publisher != nil {
		deps.Queue = publisher
	}
	a.Services, err = NewServices(deps)
	if err != nil {
		return nil, err
	}

	if opts.StartWorker && a.MQConn != nil {
		a.IndexWorker = worker.NewIndexWorker(a.MQConn, a.Services.Ingestor, cfg.RabbitMQ.IndexQueue, 1)
		if err := a.IndexWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start index worker failed: %w", err)
		}
	}

	return a, nil
}

// NewVectorIndex opens the configured chunk store.
func NewVectorIndex(ctx context.Context, cfg *config.Config) (vectorindex.Index, error) {
	if cfg.Vector.Backend == "memory" {
		return vectorindex.NewMemoryIndex(cfg.Vector.Dimension), nil
	}
	index, err := qdrantClient.New(ctx, vectorindex.QdrantConfig{
		Host:        cfg.Vector.Host,
		Port:        cfg.Vector.Port,
		APIKey:      cfg.Vector.APIKey,
		UseTLS:      cfg.Vector.UseTLS,
		PoolSize:    cfg.Vector.PoolSize,
		Collection:  cfg.Vector.Collection,
		Dimension:   cfg.Vector.Dimension,
		HNSWM:       cfg.Vector.HNSWM,
		EfConstruct: cfg.Vector.EfConstruct,
		SearchEf:    cfg.Vector.SearchEf,
		Timeout:     time.Duration(cfg.Vector.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return index, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.IndexWorker != nil {
		a.IndexWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
