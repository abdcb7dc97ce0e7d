package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/halcyonlabs/halcyon-device/internal/analysis"
	"github.com/halcyonlabs/halcyon-device/internal/auth"
	"github.com/halcyonlabs/halcyon-device/internal/backup"
	"github.com/halcyonlabs/halcyon-device/internal/chat"
	"github.com/halcyonlabs/halcyon-device/internal/checkin"
	"github.com/halcyonlabs/halcyon-device/internal/cloudsync"
	"github.com/halcyonlabs/halcyon-device/internal/config"
	"github.com/halcyonlabs/halcyon-device/internal/database"
	"github.com/halcyonlabs/halcyon-device/internal/ids"
	"github.com/halcyonlabs/halcyon-device/internal/journal"
	"github.com/halcyonlabs/halcyon-device/internal/logging"
	"github.com/halcyonlabs/halcyon-device/internal/server"
	"github.com/halcyonlabs/halcyon-device/internal/settings"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "halcyon-device",
		Short: "Halcyon on-device vault service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
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
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-file", defaults.GetString("log.file"), "Optional rotating log file path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Pairing token TTL in minutes")
	cmd.PersistentFlags().Int("backup-keep", defaults.GetInt("backup.keep"), "Cloud snapshot files to retain")
	cmd.PersistentFlags().String("pairing-code", "", "Pairing code clients must present (overrides env)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.file", "log-file")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "backup.keep", "backup-keep")
	bindFlag(cmd, "auth.pairing_code", "pairing-code")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	// Env vars from a local .env file, if one exists next to the binary.
	_ = godotenv.Load()

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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Options{
		Level:    appConfig.LogLevel,
		FilePath: appConfig.LogFile,
	})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	idProvider := ids.NewUUIDProvider()

	journalService, err := journal.NewService(journal.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	chatService, err := chat.NewService(chat.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	checkinService, err := checkin.NewService(checkin.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	analysisService, err := analysis.NewService(analysis.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	settingsStore, err := settings.NewStore(settings.StoreConfig{Database: db})
	if err != nil {
		return err
	}

	orchestrator, err := backup.NewOrchestrator(backup.OrchestratorConfig{
		Journal:  journalService,
		Chat:     chatService,
		Checkins: checkinService,
		Analyses: analysisService,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	cloudAdapter, err := cloudsync.NewAdapter(cloudsync.AdapterConfig{
		Orchestrator: orchestrator,
		Settings:     settingsStore,
		Clock:        time.Now,
		Logger:       logger,
		KeepCount:    appConfig.BackupKeep,
	})
	if err != nil {
		return err
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "halcyon-device",
		Audience:      "halcyon-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		PairingCode:  appConfig.PairingCode,
		Journal:      journalService,
		Chat:         chatService,
		Checkins:     checkinService,
		Analyses:     analysisService,
		Orchestrator: orchestrator,
		Cloud:        cloudAdapter,
		Dispatcher:   server.NewDataEventDispatcher(),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
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
