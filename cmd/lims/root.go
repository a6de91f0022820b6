package main

import (
	"fmt"

	"github.com/labtrack/lims/pkg/common/config"
	"github.com/labtrack/lims/pkg/common/database"
	"github.com/labtrack/lims/pkg/common/kafka"
	"github.com/labtrack/lims/pkg/common/logger"
	"github.com/labtrack/lims/pkg/lims"
	"github.com/labtrack/lims/pkg/observability/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "lims",
	Short: "Laboratory sample tracking backend",
	Long: `lims records agencies, contacts, batches, samples, clients and results
together with the reference data (categories, infos, refs, projects,
roadmaps, positions, libraries) they point at, and serves them as a
hyperlinked JSON API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(eventsCmd)
}

// app holds the handles one command invocation owns.
type app struct {
	db       *gorm.DB
	redis    *redis.Client
	producer *kafka.Producer
	metrics  *metrics.Metrics
	service  *lims.Service
}

// openApp connects the store and the optional cache and event producer.
// A cache that cannot be reached is logged and skipped.
func openApp(withMetrics bool) (*app, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{db: db}

	opts := []lims.Option{
		lims.WithPaging(lims.PageConfig{PerPage: cfg.PerPage, MaxPerPage: cfg.MaxPerPage}),
	}

	if withMetrics {
		m, err := metrics.New()
		if err != nil {
			a.close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		a.metrics = m
		opts = append(opts, lims.WithMetrics(m))
	}

	if cfg.CacheEnabled {
		client, err := database.NewRedis(cfg)
		if err != nil {
			logger.Log.WithError(err).Warn("View cache disabled")
		} else {
			a.redis = client
			opts = append(opts, lims.WithCache(lims.NewRedisCache(client, "", cfg.CacheTTL)))
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		a.producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.EventsTopic)
		opts = append(opts, lims.WithPublisher(a.producer))
	}

	a.service = lims.NewService(db, opts...)
	return a, nil
}

func (a *app) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			logger.Log.WithError(err).Warn("Failed to close event producer")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Log.WithError(err).Warn("Failed to close redis client")
		}
	}
	if err := database.Close(a.db); err != nil {
		logger.Log.WithError(err).Warn("Failed to close database")
	}
}
