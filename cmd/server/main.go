package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/ivvboard/internal/api"
	"github.com/good-yellow-bee/ivvboard/internal/api/health"
	"github.com/good-yellow-bee/ivvboard/internal/export"
	"github.com/good-yellow-bee/ivvboard/internal/logging"
	"github.com/good-yellow-bee/ivvboard/internal/metrics"
	"github.com/good-yellow-bee/ivvboard/internal/mq"
	"github.com/good-yellow-bee/ivvboard/internal/notifier"
	"github.com/good-yellow-bee/ivvboard/internal/reporting"
	"github.com/good-yellow-bee/ivvboard/internal/storage"
	"github.com/good-yellow-bee/ivvboard/internal/watch"
	"github.com/good-yellow-bee/ivvboard/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ivvboard-server",
	Short: "ivvboard server - IV&V project reporting dashboard",
	Long: `ivvboard server hosts the HTTP API of the IV&V reporting dashboard:
the public project directory, vendor report submission, oversight review
and the live change streams.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.VersionString("ivvboard-server"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	var cfg *Config
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	cfg.Verbose = verbose
	if cfg.Verbose {
		cfg.Logging.Level = "debug"
	}

	logger, flush, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer flush()

	jwtSecret := os.Getenv("IVVBOARD_JWT_SECRET")
	if jwtSecret == "" {
		return fmt.Errorf("IVVBOARD_JWT_SECRET environment variable is required")
	}

	store, pinger, err := openStorage(cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	password, err := store.EnsureStaffUser(cfg.Database.StaffEmail)
	if err != nil {
		return fmt.Errorf("ensure staff user: %w", err)
	}
	if password != "" {
		fmt.Printf("\n")
		fmt.Printf("===========================================\n")
		fmt.Printf("  INITIAL STAFF ACCOUNT CREATED\n")
		fmt.Printf("  Email:    %s\n", cfg.Database.StaffEmail)
		fmt.Printf("  Password: %s\n", password)
		fmt.Printf("  CHANGE THIS PASSWORD IMMEDIATELY!\n")
		fmt.Printf("===========================================\n")
		fmt.Printf("\n")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Events reach in-process streams through the broker and, when
	// configured, RabbitMQ consumers through the publisher.
	var broker watch.Broker = watch.NewHub()
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		rb := watch.NewRedisBroker(redisClient, cfg.Redis.ChannelPrefix)
		if err := rb.Ping(ctx); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		broker = rb
		logger.Info("redis event broker enabled", zap.String("addr", cfg.Redis.Addr))
	}

	publishers := watch.Fanout{broker}
	var amqpPub *mq.Publisher
	if cfg.AMQP.URL != "" {
		amqpPub, err = mq.NewPublisher(cfg.AMQP.URL)
		if err != nil {
			return err
		}
		defer amqpPub.Close()
		publishers = append(publishers, amqpPub)
		logger.Info("amqp event publisher enabled")
	}

	dispatcher, err := newDispatcher(cfg.Notify, store.Projects())
	if err != nil {
		return err
	}
	if dispatcher != nil {
		defer dispatcher.Close()
		publishers = append(publishers, dispatcher)
		logger.Info("notifications enabled", zap.Int("channels", dispatcher.Len()))
	}

	service := reporting.NewService(store, publishers)

	apiCfg := &api.Config{
		Address:           cfg.Server.HTTPAddress,
		JWTSecret:         []byte(jwtSecret),
		TLSEnabled:        cfg.Server.TLS.Enabled,
		TLSCertFile:       cfg.Server.TLS.CertFile,
		TLSKeyFile:        cfg.Server.TLS.KeyFile,
		AccessTokenTTL:    duration(cfg.Auth.AccessTokenTTL),
		RefreshTokenTTL:   duration(cfg.Auth.RefreshTokenTTL),
		RateLimitPerIP:    cfg.Auth.RateLimitPerIP,
		RateLimitPerUser:  cfg.Auth.RateLimitPerUser,
		LockoutThreshold:  cfg.Auth.LockoutThreshold,
		LockoutDuration:   duration(cfg.Auth.LockoutDuration),
		StreamMaxDuration: duration(cfg.Stream.MaxDuration),
		StreamHeartbeat:   duration(cfg.Stream.Heartbeat),
		WSOriginPatterns:  cfg.Stream.OriginPatterns,
		Export:            export.Options{PDFFontPath: cfg.Export.PDFFontPath},
		Verbose:           cfg.Verbose,
	}

	srv, err := api.New(apiCfg, store, service, broker)
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}

	if sqlite, ok := store.(*storage.SQLiteStorage); ok {
		srv.RegisterHealthChecker(health.NewSQLiteChecker(sqlite.DB()))
	} else {
		srv.RegisterHealthChecker(health.NewPingChecker(cfg.Database.Driver, pinger))
	}
	if redisClient != nil {
		srv.RegisterHealthChecker(health.NewPingChecker("redis", broker.(*watch.RedisBroker)))
	}
	if amqpPub != nil {
		srv.RegisterHealthChecker(health.NewConnectionChecker("amqp", amqpPub.IsConnected))
	}

	build := config.GetBuildInfo()
	metrics.SetBuildInfo(build.Version, build.Commit, build.BuildTime)
	logger.Info("starting ivvboard-server",
		zap.String("version", build.Version),
		zap.String("commit", build.Commit),
		zap.String("database", cfg.Database.Driver),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(gctx)
	})

	g.Go(func() error {
		srv.Tokens().RunCleanup(gctx, duration(cfg.Auth.CleanupInterval))
		return nil
	})

	if dispatcher != nil {
		g.Go(func() error {
			return dispatcher.Run(gctx)
		})
	}

	if cfg.Metrics.Enabled {
		metricsSrv := metrics.NewServer(cfg.Metrics.Address, cfg.Metrics.Token)
		g.Go(func() error {
			return metricsSrv.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run server: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStorage opens and migrates the configured backend. The pinger is the
// readiness probe for backends without a *sql.DB.
func openStorage(cfg DatabaseConfig) (storage.Storage, health.Pinger, error) {
	switch cfg.Driver {
	case DriverFirestore:
		fsStore := storage.NewFirestoreStorage(storage.FirestoreConfig{
			ProjectID:       cfg.ProjectID,
			CredentialsFile: cfg.CredentialsFile,
		})
		if err := fsStore.Open(); err != nil {
			return nil, nil, fmt.Errorf("open firestore: %w", err)
		}
		zap.L().Info("firestore storage initialized", zap.String("project_id", cfg.ProjectID))
		return fsStore, fsStore, nil

	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
			return nil, nil, fmt.Errorf("create data directory: %w", err)
		}
		sqlite := storage.NewSQLiteStorage(cfg.Path)
		if err := sqlite.Open(); err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := sqlite.Migrate(); err != nil {
			sqlite.Close()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		zap.L().Info("database initialized", zap.String("path", cfg.Path))
		return sqlite, nil, nil
	}
}

// newDispatcher builds the notification dispatcher, or returns nil when no
// channel is configured.
func newDispatcher(cfg NotifyConfig, projects notifier.ProjectLookup) (*notifier.Dispatcher, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	opts := notifier.Options{
		RateLimit: notifier.RateLimitConfig{
			MaxPerWindow: cfg.RateLimit,
			Window:       time.Minute,
			Enabled:      cfg.RateLimit > 0,
		},
	}
	for _, e := range cfg.Events {
		opts.Events = append(opts.Events, watch.EventType(e))
	}
	d := notifier.NewDispatcher(projects, opts)

	if cfg.SlackWebhookURL != "" {
		n, err := notifier.NewSlackNotifier(notifier.SlackConfig{WebhookURL: cfg.SlackWebhookURL})
		if err != nil {
			return nil, err
		}
		d.Register(n)
	}
	if cfg.TeamsWebhookURL != "" {
		n, err := notifier.NewTeamsNotifier(notifier.TeamsConfig{WebhookURL: cfg.TeamsWebhookURL})
		if err != nil {
			return nil, err
		}
		d.Register(n)
	}
	if cfg.Email.Host != "" {
		n, err := notifier.NewEmailNotifier(notifier.EmailConfig{
			Host:       cfg.Email.Host,
			Port:       cfg.Email.Port,
			Username:   cfg.Email.Username,
			Password:   cfg.Email.Password,
			From:       cfg.Email.From,
			Recipients: cfg.Email.Recipients,
		})
		if err != nil {
			return nil, err
		}
		d.Register(n)
	}
	return d, nil
}
