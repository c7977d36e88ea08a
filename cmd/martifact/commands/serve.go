package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"tangled.org/atscan.net/martifact/internal/catalog"
	"tangled.org/atscan.net/martifact/internal/config"
	"tangled.org/atscan.net/martifact/internal/logging"
	"tangled.org/atscan.net/martifact/server"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the inspection HTTP server",
		Long: `Start the inspection HTTP server

Artifacts are uploaded with POST /inspect and decoded as the body streams
in. With --ws, /ws accepts an artifact as binary WebSocket messages and
pushes decode events back while it is read. Every inspection is recorded
in the catalog, which is saved to --catalog when set.`,

		Example: `  martifact serve
  martifact serve --addr :9000 --ws --catalog catalog.json
  curl --data-binary @release.mender 'http://localhost:8080/inspect?name=release.mender'`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			cat := catalog.NewCatalog()
			if path := env.cfg.Server.Catalog; path != "" {
				if cat, err = catalog.LoadOrCreate(path); err != nil {
					return err
				}
				env.log.Info("catalog loaded", zap.String("path", path), zap.Int("entries", cat.Count()))
			}

			srv := server.New(&server.Config{
				Addr:            env.cfg.Server.Addr,
				EnableWebSocket: env.cfg.Server.WebSocket,
				MaxUploadSize:   env.cfg.Server.MaxUploadSize,
				CatalogPath:     env.cfg.Server.Catalog,
				Version:         GetVersion(),
				Decode:          env.decode,
			}, cat, logging.NewLogr(env.log))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()

			env.log.Info("server listening",
				zap.String("addr", env.cfg.Server.Addr),
				zap.Bool("websocket", env.cfg.Server.WebSocket),
				zap.Int64("max_upload", env.cfg.Server.MaxUploadSize))

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			env.log.Info("shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown failed: %w", err)
			}
			if path := env.cfg.Server.Catalog; path != "" {
				if err := cat.Save(path); err != nil {
					return err
				}
			}
			env.log.Info("shutdown complete")
			return nil
		},
	}

	cmd.Flags().String("addr", config.DEFAULT_SERVER_ADDR, "listen address")
	cmd.Flags().Bool("ws", false, "enable the /ws streaming endpoint")
	cmd.Flags().String("catalog", "", "catalog file to load and save")
	cmd.Flags().Int64("max-upload", config.DEFAULT_MAX_UPLOAD_SIZE, "maximum upload size in bytes")

	return cmd
}
