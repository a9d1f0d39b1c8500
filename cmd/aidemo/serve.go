// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/config"
	"github.com/your-org/ai-demo-gateway/internal/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, level, err := setup(opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			gin.SetMode(cfg.Server.Mode)

			a, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			logger.Info("Configuration loaded", zap.Any("config", cfg.MaskSensitiveValues()))

			if watch {
				err := config.WatchConfig(opts.configPath, logger, func(updated *config.Config) {
					level.SetLevel(parseLevel(updated.Logging.Level))
					if updated.Renderer.MermaidInkURL != cfg.Renderer.MermaidInkURL {
						logger.Info("Renderer endpoint changes apply after restart; clearing cached renders")
						a.renderer.ClearCache()
					}
					logger.Info("Reloaded configuration", zap.String("log_level", updated.Logging.Level))
				})
				switch {
				case errors.Is(err, config.ErrNoConfigFile):
					logger.Info("No configuration file to watch")
				case err != nil:
					return err
				}
			}

			if addr == "" {
				addr = cfg.Server.Addr()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(a.serverOptions(), logger).Run(ctx, addr, cfg.Server.ShutdownTimeout)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.host and server.port")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload log level when the configuration file changes")
	return cmd
}
