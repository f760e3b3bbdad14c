package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-service/internal/config"
	"github.com/kozaktomas/face-service/internal/logging"
	"github.com/kozaktomas/face-service/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service",
	Long: `Start the face service.
Serves /recognize, /register, /health, /migrate-embeddings and /metrics,
at the root and under /api/v1.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 5001, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			port = p
		}
	}
	if envHost := os.Getenv("HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Server.Port, cfg.Server.Host = resolveServeHostPort(cmd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svcs, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svcs.Close()

	logStartup(cfg, svcs)
	server := web.NewServer(cfg, svcs.pipeline, svcs.exporter.Handler())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logging.Infof("Shutting down...")
		svcs.pipeline.Cache().InvalidateAll()

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Errorf("Error during shutdown: %v", err)
		}
	}()

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

func logStartup(cfg *config.Config, svcs *services) {
	h := svcs.pipeline.Health()
	logging.WithFields(logging.Fields{
		"status":        h.Status,
		"face_model":    h.FaceRecognition,
		"model_name":    svcs.faceModel.ModelName(),
		"anti_spoofing": h.AntiSpoofing,
		"db_driver":     cfg.Database.Driver,
		"cache_ttl":     cfg.Cache.TTL.String(),
		"enforce":       cfg.Server.EnforceSecret,
	}).Infof("Face service ready on http://%s:%d", cfg.Server.Host, cfg.Server.Port)
}
