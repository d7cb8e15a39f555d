package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vitwit/walletlink/api"
)

func serveCmd() *cobra.Command {
	var (
		addr      string
		rateLimit float64
		burst     int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the wallet REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.HTTPAddr
			}
			log := client.Logger()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := client.AutoConnect(ctx); err != nil {
				log.Warn("auto-connect failed", map[string]any{"error": err})
			}

			gin.SetMode(gin.ReleaseMode)
			r := gin.New()
			r.Use(gin.Recovery())
			r.GET("/health", func(c *gin.Context) {
				c.JSON(http.StatusOK, api.OK(gin.H{"status": "ok"}))
			})
			if cfg.EnableMetrics {
				r.GET("/metrics", gin.WrapH(promhttp.Handler()))
			}
			client.Handler(api.WithRateLimit(rateLimit, burst)).RegisterRoutes(r)

			srv := &http.Server{
				Addr:              addr,
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("http server listening", map[string]any{"addr": addr})
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Info("shutting down http server", nil)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().Float64Var(&rateLimit, "rate", 5, "mutating requests per second per client")
	cmd.Flags().IntVar(&burst, "burst", 10, "rate limiter burst")
	return cmd
}
