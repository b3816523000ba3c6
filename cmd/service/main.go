package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/frostline/repofreeze/internal/config"
	"github.com/frostline/repofreeze/internal/engine"
	"github.com/frostline/repofreeze/internal/freezestore"
	"github.com/frostline/repofreeze/internal/github"
	"github.com/frostline/repofreeze/internal/handlers"
	"github.com/frostline/repofreeze/internal/health"
	"github.com/frostline/repofreeze/internal/logger"
	"github.com/frostline/repofreeze/internal/metrics"
	"github.com/frostline/repofreeze/internal/refresh"
	"github.com/frostline/repofreeze/internal/scheduler"
	"github.com/frostline/repofreeze/internal/server"
	"github.com/frostline/repofreeze/internal/store"
	"github.com/frostline/repofreeze/internal/unlock"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "repofreeze",
	Short: "Repository freeze service",
	Long:  `A service enforcing repository freeze windows through GitHub check runs.`,
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Commit:  %s\n", commit)
		fmt.Printf("Built:   %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// Server flags
	rootCmd.Flags().Int("api-port", 8080, "API server port")
	rootCmd.Flags().String("api-host", "0.0.0.0", "API server host")
	rootCmd.Flags().Int("probe-port", 8081, "Probe server port")
	rootCmd.Flags().String("probe-host", "0.0.0.0", "Probe server host")
	rootCmd.Flags().Int("metrics-port", 9090, "Metrics server port")
	rootCmd.Flags().String("metrics-host", "0.0.0.0", "Metrics server host")
	rootCmd.Flags().Bool("tls-enabled", false, "Enable TLS for API server")
	rootCmd.Flags().String("tls-cert", "", "Path to TLS certificate")
	rootCmd.Flags().String("tls-key", "", "Path to TLS key")
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().String("log-format", "json", "Log format (json, console)")
	rootCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout (e.g., 30s)")
	rootCmd.Flags().Duration("health-check-timeout", 5*time.Second, "Health check timeout (e.g., 5s)")
	rootCmd.Flags().Duration("health-cache-duration", 10*time.Second, "Health check cache duration (e.g., 10s)")

	// Freeze database flags
	rootCmd.Flags().String("database-url", "", "PostgreSQL connection URL for freeze records")

	// GitHub gateway flags
	rootCmd.Flags().String("github-api-url", github.DefaultBaseURL, "GitHub API base URL")
	rootCmd.Flags().Int64("github-app-id", 0, "GitHub App ID")
	rootCmd.Flags().String("github-private-key-path", "", "Path to the GitHub App private key")
	rootCmd.Flags().String("github-token", "", "Static GitHub token (overrides App credentials)")

	// Scheduler and refresh flags
	rootCmd.Flags().Duration("scheduler-interval", scheduler.DefaultInterval, "Scheduled freeze activation interval")
	rootCmd.Flags().Int("refresh-max-concurrent", refresh.DefaultMaxConcurrent, "Check run updates in flight per repository")
	rootCmd.Flags().Duration("refresh-batch-delay", refresh.DefaultBatchDelay, "Delay between check run update batches")
	rootCmd.Flags().Int("refresh-max-retries", refresh.DefaultMaxRetries, "Retries per failed check run update")
	rootCmd.Flags().Duration("refresh-base-retry-delay", refresh.DefaultBaseRetryDelay, "Base delay for check run update retries")

	// Olric flags for the unlock registry
	rootCmd.Flags().String("olric-host", store.DefaultBindAddr, "Olric bind host")
	rootCmd.Flags().Int("olric-port", store.DefaultBindPort, "Olric bind port")
	rootCmd.Flags().StringSlice("olric-join-addrs", []string{}, "Olric cluster join addresses")
	rootCmd.Flags().String("olric-replication-mode", store.DefaultReplicationMode, "Olric replication mode (sync/async)")
	rootCmd.Flags().Int("olric-replication-factor", store.DefaultReplicationFactor, "Olric replication factor")
	rootCmd.Flags().Int("olric-partition-count", int(store.DefaultPartitionCount), "Olric partition count")
	rootCmd.Flags().Int("olric-member-count-quorum", store.DefaultMemberCountQuorum, "Olric member count quorum")
	rootCmd.Flags().Duration("olric-join-retry-interval", store.DefaultJoinRetryInterval, "Olric join retry interval")
	rootCmd.Flags().Int("olric-max-join-attempts", store.DefaultMaxJoinAttempts, "Olric max join attempts")
	rootCmd.Flags().String("olric-log-level", store.DefaultLogLevel, "Olric log level (DEBUG/INFO/WARN/ERROR)")
	rootCmd.Flags().Duration("olric-keep-alive-period", store.DefaultKeepAlivePeriod, "Olric keep alive period")
	rootCmd.Flags().Duration("olric-request-timeout", store.DefaultRequestTimeout, "Olric request timeout")
	rootCmd.Flags().String("olric-dmap-name", store.DefaultDMapName, "Olric DMap name for override records")

	// Bind flags to viper
	_ = viper.BindPFlag("api.port", rootCmd.Flags().Lookup("api-port"))
	_ = viper.BindPFlag("api.host", rootCmd.Flags().Lookup("api-host"))
	_ = viper.BindPFlag("probe.port", rootCmd.Flags().Lookup("probe-port"))
	_ = viper.BindPFlag("probe.host", rootCmd.Flags().Lookup("probe-host"))
	_ = viper.BindPFlag("metrics.port", rootCmd.Flags().Lookup("metrics-port"))
	_ = viper.BindPFlag("metrics.host", rootCmd.Flags().Lookup("metrics-host"))
	_ = viper.BindPFlag("tls.enabled", rootCmd.Flags().Lookup("tls-enabled"))
	_ = viper.BindPFlag("tls.cert", rootCmd.Flags().Lookup("tls-cert"))
	_ = viper.BindPFlag("tls.key", rootCmd.Flags().Lookup("tls-key"))
	_ = viper.BindPFlag("log.level", rootCmd.Flags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.Flags().Lookup("log-format"))
	_ = viper.BindPFlag("shutdown.timeout", rootCmd.Flags().Lookup("shutdown-timeout"))
	_ = viper.BindPFlag("health.check_timeout", rootCmd.Flags().Lookup("health-check-timeout"))
	_ = viper.BindPFlag("health.cache_duration", rootCmd.Flags().Lookup("health-cache-duration"))
	_ = viper.BindPFlag("database.url", rootCmd.Flags().Lookup("database-url"))
	_ = viper.BindPFlag("github.api_url", rootCmd.Flags().Lookup("github-api-url"))
	_ = viper.BindPFlag("github.app_id", rootCmd.Flags().Lookup("github-app-id"))
	_ = viper.BindPFlag("github.private_key_path", rootCmd.Flags().Lookup("github-private-key-path"))
	_ = viper.BindPFlag("github.token", rootCmd.Flags().Lookup("github-token"))
	_ = viper.BindPFlag("scheduler.interval", rootCmd.Flags().Lookup("scheduler-interval"))
	_ = viper.BindPFlag("refresh.max_concurrent", rootCmd.Flags().Lookup("refresh-max-concurrent"))
	_ = viper.BindPFlag("refresh.batch_delay", rootCmd.Flags().Lookup("refresh-batch-delay"))
	_ = viper.BindPFlag("refresh.max_retries", rootCmd.Flags().Lookup("refresh-max-retries"))
	_ = viper.BindPFlag("refresh.base_retry_delay", rootCmd.Flags().Lookup("refresh-base-retry-delay"))
	_ = viper.BindPFlag("olric.host", rootCmd.Flags().Lookup("olric-host"))
	_ = viper.BindPFlag("olric.port", rootCmd.Flags().Lookup("olric-port"))
	_ = viper.BindPFlag("olric.join_addrs", rootCmd.Flags().Lookup("olric-join-addrs"))
	_ = viper.BindPFlag("olric.replication_mode", rootCmd.Flags().Lookup("olric-replication-mode"))
	_ = viper.BindPFlag("olric.replication_factor", rootCmd.Flags().Lookup("olric-replication-factor"))
	_ = viper.BindPFlag("olric.partition_count", rootCmd.Flags().Lookup("olric-partition-count"))
	_ = viper.BindPFlag("olric.member_count_quorum", rootCmd.Flags().Lookup("olric-member-count-quorum"))
	_ = viper.BindPFlag("olric.join_retry_interval", rootCmd.Flags().Lookup("olric-join-retry-interval"))
	_ = viper.BindPFlag("olric.max_join_attempts", rootCmd.Flags().Lookup("olric-max-join-attempts"))
	_ = viper.BindPFlag("olric.log_level", rootCmd.Flags().Lookup("olric-log-level"))
	_ = viper.BindPFlag("olric.keep_alive_period", rootCmd.Flags().Lookup("olric-keep-alive-period"))
	_ = viper.BindPFlag("olric.request_timeout", rootCmd.Flags().Lookup("olric-request-timeout"))
	_ = viper.BindPFlag("olric.dmap_name", rootCmd.Flags().Lookup("olric-dmap-name"))
}

// olricConfigFromViper builds the unlock registry store configuration.
func olricConfigFromViper() *store.OlricConfig {
	cfg := store.NewDefaultOlricConfig()
	cfg.BindAddr = viper.GetString("olric.host")
	cfg.BindPort = viper.GetInt("olric.port")
	cfg.JoinAddrs = viper.GetStringSlice("olric.join_addrs")
	cfg.ReplicationMode = viper.GetString("olric.replication_mode")
	cfg.ReplicationFactor = viper.GetInt("olric.replication_factor")
	cfg.PartitionCount = viper.GetUint64("olric.partition_count")
	cfg.MemberCountQuorum = viper.GetInt("olric.member_count_quorum")
	cfg.JoinRetryInterval = viper.GetDuration("olric.join_retry_interval")
	cfg.MaxJoinAttempts = viper.GetInt("olric.max_join_attempts")
	cfg.LogLevel = viper.GetString("olric.log_level")
	cfg.KeepAlivePeriod = viper.GetDuration("olric.keep_alive_period")
	cfg.RequestTimeout = viper.GetDuration("olric.request_timeout")
	cfg.DMapName = viper.GetString("olric.dmap_name")
	return cfg
}

// tokenSource picks static token or App credential authentication.
func tokenSource(cfg *config.Config, log *zap.Logger) (github.TokenSource, error) {
	if cfg.GitHubToken != "" {
		log.Info("Using static GitHub token")
		return github.StaticTokenSource(cfg.GitHubToken), nil
	}

	pemKey, err := os.ReadFile(cfg.GitHubPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read GitHub App private key: %w", err)
	}

	auth, err := github.NewAppAuth(cfg.GitHubAppID, pemKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load GitHub App credentials: %w", err)
	}

	log.Info("Using GitHub App credentials", zap.Int64("app_id", cfg.GitHubAppID))
	return github.NewInstallationTokenSource(auth, cfg.GitHubAPIURL, nil, log), nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting repository freeze service",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	ctx := context.Background()

	// Freeze record database
	if err := freezestore.Migrate(ctx, cfg.DatabaseURL, log); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	pool, err := freezestore.NewPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	freezes := freezestore.NewPostgresStore(pool, log)

	// Unlock registry over embedded Olric
	olricCfg := olricConfigFromViper()
	olricStore, err := store.NewOlricStore(ctx, olricCfg, log)
	if err != nil {
		return fmt.Errorf("failed to start override store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := olricStore.Close(closeCtx); err != nil {
			log.Error("Failed to close override store", zap.Error(err))
		}
	}()

	registry := unlock.NewOlricRegistry(olricStore, log)

	// GitHub gateway
	tokens, err := tokenSource(cfg, log)
	if err != nil {
		return err
	}
	gateway := github.NewClient(cfg.GitHubAPIURL, tokens, nil, log)

	// Check run synchronizer and lifecycle engine
	refreshCfg := refresh.Config{
		MaxConcurrent:  cfg.RefreshMaxConcurrent,
		BatchDelay:     cfg.RefreshBatchDelay,
		MaxRetries:     cfg.RefreshMaxRetries,
		BaseRetryDelay: cfg.RefreshBaseRetryDelay,
	}
	refresher := refresh.NewService(gateway, freezes, registry, refreshCfg, log)
	eng := engine.New(freezes, registry, refresher, gateway, log)

	// HTTP surface
	buildInfo := map[string]string{
		"version": version,
		"commit":  commit,
		"date":    date,
	}
	m := metrics.NewMetrics(cfg.MetricsNamespace, buildInfo)
	refresher.SetMetrics(m)

	olricMetrics := store.NewOlricMetrics(cfg.MetricsNamespace, m.Registry())
	olricStore.SetMetrics(olricMetrics)
	collector := store.NewOlricMetricsCollector(log, olricStore, olricMetrics, 15*time.Second)
	collector.Start()
	defer collector.Stop()

	api := handlers.NewFreezeHandlers(eng, refresher, log, m)

	srv, err := server.New(cfg, log, m, api)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	srv.RegisterChecker(freezestore.NewDatabaseHealthChecker(log, pool))
	srv.RegisterChecker(store.NewConnectionHealthChecker(log, olricStore))
	srv.RegisterChecker(store.NewClusterHealthChecker(log, olricStore, olricCfg.MemberCountQuorum, olricCfg.IsSingleNode()))
	srv.RegisterChecker(store.NewStorageHealthChecker(log, olricStore))
	srv.RegisterChecker(health.NewGatewayChecker(log, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.GitHubAPIURL, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}))

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	// Scheduled freeze activation loop
	sched := scheduler.New(freezes, refresher, cfg.SchedulerInterval, log)
	sched.SetMetrics(m)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	log.Info("Service started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutdown signal received")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		return err
	}

	log.Info("Service stopped gracefully")
	return nil
}
