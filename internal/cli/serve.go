package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	transport "quiz-client/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand that hosts the client views locally.
func NewServeCmd(opts *options) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the client views and session events over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *client) error {
				return runServer(ctx, c, port)
			})
		},
	}
	cmd.Flags().StringVar(&port, "port", os.Getenv("PORT"), "port to listen on (defaults to server.port)")
	return cmd
}

func runServer(ctx context.Context, c *client, portFlag string) error {
	finalPort := portFlag
	if finalPort == "" {
		finalPort = c.cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "5173"
	}

	// a restored session is being watched again
	c.session.StartInactivity()

	srv := transport.NewServer(transport.Deps{
		Session: c.session,
		Auth:    c.auth,
		Views:   c.views,
		Admin:   c.admin,
		Quizzes: c.gateway,
		Events:  c.events,
	})

	server := &http.Server{
		Addr:         "127.0.0.1:" + finalPort,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("serving quiz client on %s (backend %s)", server.Addr, c.cfg.API.BaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	case err := <-errCh:
		log.Printf("failed to start server: %v", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
