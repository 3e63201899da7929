package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pos-billing/internal/config"
	"pos-billing/internal/remote"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRemoteStore opens the configured remote backend behind the Store
// contract. A store that is unreachable at boot is NOT fatal: the backend
// must come up offline and serve from local snapshots, so reachability is
// probed per sync cycle instead.
func NewRemoteStore(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (remote.Store, error) {
	switch cfg.DBDriver {
	case "mysql", "postgres":
		db, err := sql.Open(cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s connection: %w", cfg.DBDriver, err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			log.Warn("remote store unreachable at startup, continuing offline", zap.Error(err))
		} else {
			log.Info("connected to remote store", zap.String("driver", cfg.DBDriver))
		}

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return db.Close()
			},
		})
		return remote.NewSQLStore(db, cfg.DBDriver, log), nil

	case "mongodb":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("failed to open mongodb connection: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			log.Warn("remote store unreachable at startup, continuing offline", zap.Error(err))
		} else {
			log.Info("connected to remote store", zap.String("driver", cfg.DBDriver))
		}

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return client.Disconnect(ctx)
			},
		})
		return remote.NewMongoStore(client.Database(cfg.DBName), log), nil

	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}
}
