package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"call-quality-eval/backend/internal/ai"
	"call-quality-eval/backend/internal/cleanup"
	"call-quality-eval/backend/internal/evaluation"
	"call-quality-eval/backend/internal/prompts"
	"call-quality-eval/backend/internal/util"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("load .env")
	}
	util.ConfigureLogging(false)

	if err := newRootCommand(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath string
}

func newRootCommand(stdin io.Reader, stdout io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "promptctl",
		Short:        "Render prompts, clean model replies and run one-off call evaluations",
		SilenceUsage: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "prompts config path (default $PROMPTS_CONFIG_PATH or prompts-config.json beside the binary)")

	root.AddCommand(newRenderCommand(opts), newCleanCommand(), newEvaluateCommand(opts))
	return root
}

func (o *options) cache() *prompts.Cache {
	path := strings.TrimSpace(o.configPath)
	if path == "" {
		path = prompts.DefaultPath()
	}
	return prompts.NewCache(path)
}

func newRenderCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "render <identification_sujet|identification_produit>",
		Short:     "Print a categorization prompt built from the config document",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(prompts.SubjectIdentification), string(prompts.ProductIdentification)},
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := opts.cache().Get()
			if err != nil {
				return err
			}
			rendered, err := prompts.Render(prompts.TemplateKey(args[0]), doc)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}
}

func newCleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [file]",
		Short: "Clean a raw model reply read from file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cleanup.Clean(raw))
			return err
		},
	}
}

func newEvaluateCommand(opts *options) *cobra.Command {
	var (
		variantName string
		fileNameKey string
	)
	cmd := &cobra.Command{
		Use:   "evaluate [transcript-file]",
		Short: "Run every field of a variant against a transcript and print the response",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variant, ok := evaluation.Lookup(variantName)
			if !ok {
				return fmt.Errorf("unknown variant %q", variantName)
			}
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			invoker, engine, err := ai.NewEngine(ctx, ai.EngineConfigFromEnv())
			if err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{"variant": variant.Name, "engine": engine}).Info("evaluating transcript")

			dispatcher := evaluation.NewDispatcher(variant, opts.cache(), invoker)
			resp, _ := dispatcher.Handle(ctx, evaluation.Request{
				OriginalText: strings.TrimSpace(text),
				FileNameKey:  fileNameKey,
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if resp.StatusCode != 200 {
				return errors.New(resp.Body)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&variantName, "variant", evaluation.CallMining.Name, "call-mining or post-call-survey")
	cmd.Flags().StringVar(&fileNameKey, "key", "", "fileNameKey passed through to the response")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		payload, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("read %s: %w", args[0], err)
		}
		return string(payload), nil
	}
	payload, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(payload), nil
}
