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
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/ai-demo-gateway/internal/codecheck"
	"github.com/your-org/ai-demo-gateway/internal/config"
	"github.com/your-org/ai-demo-gateway/internal/diagram"
	"github.com/your-org/ai-demo-gateway/internal/flowchart"
	"github.com/your-org/ai-demo-gateway/internal/streaming"
)

const supportedLanguages = codecheck.LanguageHTML + ", " + codecheck.LanguageCSS + ", " + codecheck.LanguageJavaScript

// errInvalid signals a failed check whose details were already printed
var errInvalid = errors.New("validation failed")

func newFlowchartCommand(opts *rootOptions) *cobra.Command {
	var (
		simplify bool
		attempt  int
		render   bool
	)

	cmd := &cobra.Command{
		Use:   "flowchart <description...>",
		Short: "Generate a Mermaid flowchart from a process description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, _, err := setup(opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.flowchart == nil {
				return fmt.Errorf("%s is not configured", config.EnvClaudeKey)
			}

			result, err := a.flowchart.Generate(cmd.Context(), flowchart.Request{
				Input:               strings.Join(args, " "),
				RegenerationAttempt: attempt,
				Simplify:            simplify,
			})
			if err != nil {
				return err
			}
			if result.Warning != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", result.Warning)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.MermaidCode)
			if render {
				imageURL, fallbackText := a.renderer.RenderDiagramWithFallback(cmd.Context(), result.MermaidCode)
				if imageURL != "" {
					fmt.Fprintln(out, imageURL)
				} else {
					fmt.Fprintln(out, fallbackText)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&simplify, "simplify", false, "Ask for a smaller diagram")
	cmd.Flags().IntVar(&attempt, "attempt", 0, "Regeneration attempt, raises sampling temperature")
	cmd.Flags().BoolVar(&render, "render", false, "Also print a mermaid.ink image URL")
	return cmd
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "validate [file|-]",
		Short: "Validate Mermaid code, optionally repairing it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if diagram.ContainsUnsafeContent(code) {
				fmt.Fprintln(out, "unsafe: script or event handler content found")
				return errInvalid
			}

			strictErr := diagram.ValidateStrict(code)
			if diagram.QuickValidate(code) && strictErr == nil {
				fmt.Fprintln(out, "valid")
				return nil
			}
			if strictErr != nil {
				fmt.Fprintln(out, "invalid:", strictErr)
			} else {
				fmt.Fprintln(out, "invalid: missing diagram declaration")
			}
			if !fix {
				return errInvalid
			}

			cfg, logger, _, err := setup(opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.repairer == nil {
				return fmt.Errorf("%s is not configured", config.EnvClaudeKey)
			}

			result := a.repairer.ValidateAndCorrect(cmd.Context(), code)
			if !result.Valid() {
				logger.Warn("Repair failed", zap.String("error", result.Error))
				fmt.Fprintln(out, "repair failed:", result.Error)
				return errInvalid
			}
			fmt.Fprintln(out, result.CorrectedCode)
			return nil
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "Repair invalid code, using the LLM when a local fix is not enough")
	return cmd
}

func newCaptionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "caption <image>",
		Short: "Describe an image and extract its text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			dataURL := "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)

			cfg, logger, _, err := setup(opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.caption == nil {
				return fmt.Errorf("%s is not configured", config.EnvOpenAIKey)
			}

			reassembler := streaming.NewReassembler(nil)
			if err := a.caption.Stream(cmd.Context(), dataURL, reassembler); err != nil {
				return err
			}
			reassembler.Close()

			snapshot := reassembler.Snapshot()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, snapshot.Description)
			if snapshot.ExtractedText != "" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Text:", snapshot.ExtractedText)
			}
			return nil
		},
	}
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <language> [file|-]",
		Short: "Check playground code for unbalanced brackets and strings",
		Long:  "Check playground code. Supported languages: " + supportedLanguages,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readInput(cmd, args[1:])
			if err != nil {
				return err
			}

			issues, err := codecheck.Check(args[0], code)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(issues) == 0 {
				fmt.Fprintln(out, "ok")
				return nil
			}
			for _, issue := range issues {
				fmt.Fprintln(out, issue)
			}
			return errInvalid
		},
	}
}

// readInput reads the named file, or stdin when no file or "-" is given
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return string(data), nil
}
