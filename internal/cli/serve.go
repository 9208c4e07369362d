package cli

import (
	"github.com/spf13/cobra"

	"github.com/romega/certforge/internal/server"
	"github.com/romega/certforge/pkg/assets"
	"github.com/romega/certforge/pkg/fonts"
	"github.com/romega/certforge/pkg/queue"
)

// newServeCmd creates the serve command: run the HTTP API backing the
// certificate editor.
func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}

			store, err := cfg.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			assetCache, err := cfg.OpenCache(ctx)
			if err != nil {
				return err
			}
			defer assetCache.Close()

			opts := []server.Option{
				server.WithLogger(logger),
				server.WithLoader(assets.NewLoader(assets.WithCache(assetCache))),
				server.WithFonts(fonts.NewLibrary(fonts.WithDirs(cfg.Fonts.Dirs...))),
			}
			if cfg.Delivery.WebhookURL != "" {
				sender := queue.NewSender(store, queue.NewWebhook(cfg.Delivery.WebhookURL), cfg.Delivery.Delay())
				opts = append(opts, server.WithSender(sender))
			} else {
				logger.Warn("no delivery webhook configured; /api/queue/send is disabled")
			}

			return server.New(store, opts...).ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, \":8080\")")

	return cmd
}
