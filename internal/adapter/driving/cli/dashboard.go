package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httphandler "github.com/ericfisherdev/scipguard/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/scipguard/internal/adapter/driving/web"
	"github.com/ericfisherdev/scipguard/internal/application"
	"github.com/ericfisherdev/scipguard/internal/domain/model"
)

const shutdownTimeout = 10 * time.Second

func newDashboardCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the web dashboard",
		Long: `Serve the dashboard and its JSON API on the listen address. The audit log
is polled while a session is logged in; logging in or out from the browser,
the API or another scipguard command in this process re-arms the poller.

Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ln, err := net.Listen("tcp", a.cfg.ListenAddr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", a.cfg.ListenAddr, err)
			}
			return a.serveDashboard(cmd.Context(), ln)
		},
	}

	cmd.Flags().String("listen", "", "Dashboard listen address (env: SCIPGUARD_LISTEN_ADDR)")

	return cmd
}

// serveDashboard runs the poller and the HTTP server until ctx ends. The
// listener is closed on return.
func (a *app) serveDashboard(ctx context.Context, ln net.Listener) error {
	loop := application.NewLogSyncLoop(a.api, a.cfg.PollInterval, a.logger)
	defer loop.Close()

	unfollow := followSession(a.store, loop)
	defer unfollow()

	analysis := application.NewAnalysisService(a.api, a.store, loop, a.logger)
	health := application.NewHealthService(a.api, a.store, loop)

	apiHandler := httphandler.NewHandler(a.store, loop, analysis, health, a.logger)
	webHandler := webhandler.NewHandler(a.store, loop, analysis, a.cfg.PollInterval, a.logger)
	router := httphandler.NewRouter(apiHandler, func(r *mux.Router) {
		webhandler.RegisterRoutes(r, webHandler)
	})

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server starting", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	a.output().PrintMessage("Dashboard listening on http://" + ln.Addr().String())

	err := g.Wait()
	a.logger.Info("dashboard stopped")
	return err
}

// followSession arms loop while the session is authenticated and disarms it
// otherwise. The loop never learns about the session; only this binding does.
func followSession(store *application.SessionStore, loop *application.LogSyncLoop) (stop func()) {
	apply := func(s model.Session) {
		if s.Authenticated() {
			loop.Arm(s.Credential)
			return
		}
		loop.Disarm()
	}

	unsubscribe := store.Subscribe(apply)
	apply(store.Current())
	return unsubscribe
}
