package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/annotator/internal/handlers"
	"github.com/lehigh-university-libraries/annotator/internal/sessioncmd"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the annotation JSON API",
		Long: `Starts an HTTP server exposing annotation sessions as a JSON API on the
specified port.

Sessions are started or resumed with POST /api/sessions and
POST /api/sessions/{name}/resume, then driven with label, ignore, comment,
next, back, save, home and finish actions. Target images are served with
optional zoom, and reports can be downloaded as CSV, Parquet or YAML.`,
		Example: `  # Start server on default port 8888
  annotator serve

  # Start server on custom port
  annotator serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := sessioncmd.Open(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			handler := handlers.New(env.Store, env.Deps())

			// Set up routes
			mux := http.NewServeMux()
			handler.Register(mux)
			mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
				if _, err := w.Write([]byte("OK")); err != nil {
					slog.Error("Unable to write healthcheck", "err", err)
				}
			})

			addr := ":" + port
			server := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Annotator API available", "addr", addr, "url", "http://localhost"+addr, "sessions", env.Config.SessionsDir)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				err := server.Shutdown(shutdownCtx)
				handler.CloseAll()
				if err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")

	return cmd
}
