package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonathan/internship-compass/internal/completion"
	"github.com/jonathan/internship-compass/internal/observability"
	"github.com/jonathan/internship-compass/internal/recommend"
	"github.com/jonathan/internship-compass/internal/types"
	"github.com/spf13/cobra"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank the catalog for a candidate profile",
	Long:  "Validates a candidate profile, ranks the internship catalog with the model, and prints the top recommendations as JSON.",
	RunE:  runRank,
}

var (
	rankEducation string
	rankSkills    string
	rankSector    string
	rankLocation  string
	rankOutput    string
)

func init() {
	rankCmd.Flags().StringVar(&rankEducation, "education", "", "Education level, e.g. \"B.A. Graduate\" (required)")
	rankCmd.Flags().StringVar(&rankSkills, "skills", "", "Comma-separated skills (required)")
	rankCmd.Flags().StringVar(&rankSector, "sector", "", "Sector of interest, e.g. technology (required)")
	rankCmd.Flags().StringVar(&rankLocation, "location", "", "Preferred city or region (required)")
	rankCmd.Flags().StringVarP(&rankOutput, "out", "o", "", "Write JSON here instead of stdout")

	rootCmd.AddCommand(rankCmd)
}

func runRank(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	cat, closeDB, err := loadCatalog(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	defer closeDB()

	form := types.ProfileForm{
		Education:      rankEducation,
		Skills:         rankSkills,
		SectorInterest: rankSector,
		Location:       rankLocation,
	}
	if err := types.NewFormValidator(cat.Sectors()).Validate(&form); err != nil {
		return err
	}

	profile := form.Profile()
	var printer *observability.Printer
	if verbose || cfg.Verbose {
		printer = observability.NewPrinter(os.Stderr)
		printer.PrintProfile(&profile)
	}

	client, err := newLLMClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	recs, err := recommend.NewAssembler(completion.NewService(client), cat).Recommend(ctx, profile)
	if err != nil {
		return fmt.Errorf("%s: %w", recommend.UserMessage(err), err)
	}
	if printer != nil {
		printer.PrintRecommendations(recs)
	}

	return writeJSON(rankOutput, recs)
}

// writeJSON writes v as indented JSON to path, or to stdout when path is empty.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file %s: %w", path, err)
	}
	return nil
}
