package main

import (
	"fmt"
	"os"

	"github.com/jonathan/internship-compass/internal/completion"
	"github.com/jonathan/internship-compass/internal/i18n"
	"github.com/jonathan/internship-compass/internal/observability"
	"github.com/spf13/cobra"
)

var translateCmd = &cobra.Command{
	Use:   "translate [text...]",
	Short: "Translate strings with the model",
	Long:  "Translates each argument into the target language in one batch and prints the results as a JSON array, in argument order.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTranslate,
}

var translateLanguage string

func init() {
	translateCmd.Flags().StringVarP(&translateLanguage, "language", "l", "", "Target language code, e.g. hi (required)")
	if err := translateCmd.MarkFlagRequired("language"); err != nil {
		panic(fmt.Sprintf("failed to mark language flag as required: %v", err))
	}
	rootCmd.AddCommand(translateCmd)
}

func runTranslate(cmd *cobra.Command, args []string) error {
	code, ok := i18n.Normalize(translateLanguage)
	if !ok {
		return fmt.Errorf("unsupported language %q", translateLanguage)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	client, err := newLLMClient(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	svc := completion.NewService(client)
	var out []string
	if len(args) == 1 {
		var text string
		text, err = svc.TranslateText(cmd.Context(), args[0], code)
		out = []string{text}
	} else {
		out, err = svc.TranslateBatch(cmd.Context(), args, code)
	}
	if err != nil {
		return err
	}
	if verbose || cfg.Verbose {
		observability.NewPrinter(os.Stderr).PrintTranslations(code, args, out)
	}
	return writeJSON("", out)
}
