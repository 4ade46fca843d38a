package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kcalvelli/mcp-gateway/internal/restapi"
	"github.com/kcalvelli/mcp-gateway/pkg/config"
	"github.com/kcalvelli/mcp-gateway/pkg/logging"
	"github.com/kcalvelli/mcp-gateway/pkg/mcp"
	"github.com/kcalvelli/mcp-gateway/pkg/reload"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	serveConfigPath  string
	serveAddr        string
	serveLogLevel    string
	serveLogFormat   string
	serveLogFile     string
	serveWatchConfig bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP gateway",
	Long: `Loads the configured MCP child servers, starts the REST facade and the
MCP Streamable-HTTP transport, and serves both over a single HTTP listener
until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "mcp-gateway.json", "Path to the server config file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Address to listen on")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", "json", "Log format: json or text")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "Write logs to this file (rotated) instead of stderr")
	serveCmd.Flags().BoolVar(&serveWatchConfig, "watch-config", false, "Reconcile the enabled set whenever the config file changes")
}

// autoEnableEnvVar names the environment variable that, when set to a
// comma-separated list of child ids, are enabled automatically at startup.
// Matches the Python original's MCP_GATEWAY_AUTO_ENABLE.
const autoEnableEnvVar = "MCP_GATEWAY_AUTO_ENABLE"

func runServe(ctx context.Context) error {
	logger := newServeLogger()

	configs, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}

	manager := mcp.NewServerManager(logger)
	manager.LoadConfig(configs)

	dispatcher := mcp.NewDispatcher(manager, logging.WithComponent(logger, "transport"))
	rest := restapi.NewServer(manager, logging.WithComponent(logger, "restapi"))

	mux := http.NewServeMux()
	mux.Handle("/mcp", dispatcher)
	mux.Handle("/", rest.Handler())

	server := &http.Server{
		Addr:    serveAddr,
		Handler: mux,
	}

	runCtx, cancelAutoEnable := context.WithCancel(ctx)
	defer cancelAutoEnable()
	go autoEnableServers(runCtx, manager, logger)
	dispatcher.StartSessionCleanup(runCtx)

	var watcher *reload.Watcher
	watchDone := make(chan struct{})
	if serveWatchConfig {
		handler := reload.NewHandler(serveConfigPath, manager)
		handler.SetLogger(logger)
		watcher = reload.NewWatcher(serveConfigPath, func() error {
			_, err := handler.Reload(runCtx)
			return err
		})
		watcher.SetLogger(logger)
		go func() {
			defer close(watchDone)
			if err := watcher.Watch(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("config watcher stopped", "error", err)
			}
		}()
	} else {
		close(watchDone)
	}

	serverErrs := make(chan error, 1)
	go func() {
		logger.Info("mcp-gateway listening", "addr", serveAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrs <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrs:
		return err
	case <-sigCh:
		logger.Info("shutdown signal received")
	}

	cancelAutoEnable()
	<-watchDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown did not complete cleanly", "error", err)
	}

	manager.Shutdown()
	logger.Info("mcp-gateway stopped")
	return nil
}

// autoEnableServers enables every child id named in MCP_GATEWAY_AUTO_ENABLE
// at startup. Fire-and-forget: its only cancellation contract is that it
// stops issuing new enable calls once ctx is cancelled at shutdown: it does
// not itself disconnect anything (manager.Shutdown owns that).
func autoEnableServers(ctx context.Context, manager *mcp.ServerManager, logger *slog.Logger) {
	raw := os.Getenv(autoEnableEnvVar)
	if raw == "" {
		return
	}

	var ids []string
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}

	logger.Info("auto-enabling configured servers", "ids", ids)
	failures := manager.EnableMany(ctx, ids)
	for id, err := range failures {
		logger.Warn("auto-enable failed for server", "server_id", id, "error", err)
	}
}

func newServeLogger() *slog.Logger {
	var output io.Writer = os.Stderr
	if serveLogFile != "" {
		output = &lumberjack.Logger{
			Filename:   serveLogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	cfg := logging.Config{
		Level:     logging.ParseLevel(serveLogLevel),
		Format:    logging.ParseFormat(serveLogFormat),
		Output:    output,
		Component: "gateway",
	}

	base := logging.NewStructuredLogger(cfg)
	return slog.New(logging.NewRedactingHandler(base.Handler()))
}
