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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/ai-demo-gateway/internal/config"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

type rootOptions struct {
	configPath string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "aidemo",
		Short:         "AI demo gateway: flowcharts, captions, voice replies and chat",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")

	root.AddCommand(
		newServeCommand(opts),
		newFlowchartCommand(opts),
		newValidateCommand(opts),
		newCaptionCommand(opts),
		newCheckCommand(),
	)
	return root
}

// setup loads configuration and builds the logger every command shares
func setup(opts *rootOptions) (*config.Config, *zap.Logger, zap.AtomicLevel, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, zap.AtomicLevel{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, level, err := initializeLogger(cfg)
	if err != nil {
		return nil, nil, zap.AtomicLevel{}, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, level, nil
}

// initializeLogger creates a logger based on configuration settings. The
// returned level can be changed while the logger is in use.
func initializeLogger(cfg *config.Config) (*zap.Logger, zap.AtomicLevel, error) {
	var zapConfig zap.Config

	if cfg.Logging.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Logging.Level))

	if cfg.Logging.Output == "file" {
		zapConfig.OutputPaths = []string{"aidemo.log"}
		zapConfig.ErrorOutputPaths = []string{"aidemo.log"}
	} else {
		zapConfig.OutputPaths = []string{"stderr"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	return logger, zapConfig.Level, nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
