// Package cmd provides the mimir command line.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/mimir-go/internal/storage/adapters/elasticsearch"
	"github.com/mimir-go/pkg/config"
	"github.com/mimir-go/pkg/events"
	"github.com/mimir-go/pkg/lock"
	"github.com/mimir-go/pkg/logger"
	"github.com/mimir-go/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// app holds what every subcommand shares once the configuration is loaded.
type app struct {
	configPath string
	addresses  []string
	root       string
	logLevel   string

	cfg     *config.Config
	logger  logger.Logger
	tel     *telemetry.Telemetry
	storage *elasticsearch.Storage
	redis   *redis.Client
	events  *events.KafkaPublisher
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	if err != nil {
		stop()
		os.Exit(1)
	}
}

// newRootCmd builds the mimir command tree around a. The caller closes a
// once the command returned, also on failure.
func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mimir",
		Short: "Manage the Elasticsearch indices behind the geocoder",
		Long: `mimir creates, loads, publishes and exports the Elasticsearch indices
serving geocoding datasets.

Each dataset import lands in a fresh timestamped index that is swapped in
behind the dataset aliases once loaded, so queries never see a half built
index.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Configuration file (default ./configs/mimir.yaml)")
	cmd.PersistentFlags().StringSliceVar(&a.addresses, "es-url", nil, "Elasticsearch addresses, overrides the configuration")
	cmd.PersistentFlags().StringVar(&a.root, "root", "", "Prefix of every index and alias, overrides the configuration")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level, overrides the configuration")

	cmd.AddCommand(newCreateCmd(a))
	cmd.AddCommand(newDeleteCmd(a))
	cmd.AddCommand(newFindCmd(a))
	cmd.AddCommand(newAliasCmd(a))
	cmd.AddCommand(newInsertCmd(a))
	cmd.AddCommand(newPublishCmd(a))
	cmd.AddCommand(newImportCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newPipelineCmd(a))
	cmd.AddCommand(newServeCmd(a))

	return cmd
}

func (a *app) setup() error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.Load("mimir")
	}
	if err != nil {
		return err
	}

	if len(a.addresses) > 0 {
		cfg.Elasticsearch.Addresses = a.addresses
	}
	if a.root != "" {
		cfg.Naming.Root = a.root
	}
	if a.logLevel != "" {
		cfg.Logger.Level = a.logLevel
	}
	a.cfg = cfg
	a.logger = logger.New(cfg.Logger.ToLoggerConfig())

	a.tel, err = telemetry.New(cfg.Telemetry.ToTelemetryConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	client, err := elasticsearch.NewClient(cfg.Elasticsearch)
	if err != nil {
		return err
	}
	a.storage = elasticsearch.New(client, a.logger, elasticsearch.OptionsFromConfig(cfg))
	return nil
}

func (a *app) close() {
	if a.tel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tel.Close(ctx); err != nil {
			a.logger.Warn("Failed to flush traces", "error", err)
		}
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.logger.Warn("Failed to close event writer", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", "error", err)
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// ensurePipeline installs the ingest pipeline stamping indexed_at when the
// configuration asks for it.
func (a *app) ensurePipeline(ctx context.Context) error {
	if !a.cfg.Ingest.InstallPipeline || a.cfg.Ingest.Pipeline == "" {
		return nil
	}
	return a.storage.EnsureIndexedAtPipeline(ctx)
}

// locker returns the dataset lock when Redis is configured.
func (a *app) locker() *lock.RedisLocker {
	if a.cfg.Redis.Addr == "" {
		return nil
	}
	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})
	return lock.NewRedisLocker(a.redis, a.cfg.Redis.ToLockOptions(), a.logger)
}

// publisher returns the publication event sink when a topic is configured.
func (a *app) publisher() *events.KafkaPublisher {
	if a.cfg.Kafka.EventsTopic == "" {
		return nil
	}
	a.events = events.NewKafkaPublisher(events.NewTopicWriter(a.cfg.Kafka.Brokers, a.cfg.Kafka.EventsTopic))
	return a.events
}

func (a *app) isGeo(docType string) bool {
	return slices.Contains(a.cfg.Naming.GeoDocTypes, docType)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
