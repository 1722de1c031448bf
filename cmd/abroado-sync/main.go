package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cihanisildar/abroado-client/internal/api"
	"github.com/cihanisildar/abroado-client/internal/cache"
	"github.com/cihanisildar/abroado-client/internal/config"
	"github.com/cihanisildar/abroado-client/internal/database"
	"github.com/cihanisildar/abroado-client/internal/logging"
	"github.com/cihanisildar/abroado-client/internal/mutate"
	"github.com/cihanisildar/abroado-client/internal/push"
	"github.com/cihanisildar/abroado-client/internal/realtime"
	"github.com/cihanisildar/abroado-client/internal/server"
	"github.com/cihanisildar/abroado-client/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

const sessionPollInterval = 15 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "abroado-sync",
		Short: "Abroado client-side sync daemon",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("api-base-url", defaults.GetString("api.base_url"), "Abroado REST API base URL")
	cmd.PersistentFlags().String("push-url", defaults.GetString("push.url"), "Push channel websocket URL")
	cmd.PersistentFlags().String("state-path", defaults.GetString("state.path"), "Local state database path")
	cmd.PersistentFlags().String("devtools-address", defaults.GetString("devtools.address"), "Devtools listen address")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "api.base_url", "api-base-url")
	bindFlag(cmd, "push.url", "push-url")
	bindFlag(cmd, "state.path", "state-path")
	bindFlag(cmd, "devtools.address", "devtools-address")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runDaemon(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.StateDBPath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	sessionStore, err := session.NewStore(session.StoreConfig{
		Database: db,
		Clock:    time.Now,
	})
	if err != nil {
		return err
	}

	manager, err := session.NewManager(session.ManagerConfig{
		Store:      sessionStore,
		RefreshURL: appConfig.RefreshURL(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	apiClient, err := api.NewClient(api.ClientConfig{
		BaseURL: appConfig.APIBaseURL,
		Tokens:  manager,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	store := cache.NewStore()

	coordinator, err := mutate.NewCoordinator(mutate.CoordinatorConfig{
		Store:      store,
		API:        apiClient,
		IDProvider: mutate.NewUUIDProvider(),
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	notifier := realtime.NewNotifier()
	merger, err := realtime.NewMerger(realtime.MergerConfig{
		Store:    store,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	channel, err := push.NewChannel(push.ChannelConfig{
		URL:    appConfig.PushURL,
		Tokens: manager,
		Rooms:  merger,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer channel.Close()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go merger.Run(signalCtx, channel.Events())
	go connectWhenEstablished(signalCtx, manager, channel, sessionPollInterval, logger)

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Store:      store,
		Connection: channel,
		Typing:     merger,
		Actions:    coordinator,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.DevtoolsAddress,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("devtools listening", zap.String("address", appConfig.DevtoolsAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type sessionGate interface {
	Established(ctx context.Context) bool
}

type connector interface {
	Connect()
}

// connectWhenEstablished starts the push channel as soon as a stored,
// unexpired session exists, re-checking periodically so credentials saved
// after startup (first sign-in) are picked up without a restart.
func connectWhenEstablished(ctx context.Context, gate sessionGate, channel connector, interval time.Duration, logger *zap.Logger) {
	if gate.Established(ctx) {
		channel.Connect()
		return
	}
	logger.Warn("no established session, push channel waiting for credentials")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if gate.Established(ctx) {
				channel.Connect()
				return
			}
		}
	}
}
