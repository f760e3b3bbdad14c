package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-service/internal/pipeline"
)

var legacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "List personnel that still rely on legacy embeddings",
	Long: `List personnel that have legacy 128-dimensional embeddings and no current ones.
They need to be re-enrolled with new face photos.`,
	RunE: runLegacy,
}

func init() {
	rootCmd.AddCommand(legacyCmd)

	legacyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runLegacy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := pipeline.BuildLegacyReport(ctx, store)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Println(pipeline.LegacyMessage(report.PersonnelIDs))
	if len(report.PersonnelIDs) == 0 {
		return nil
	}
	fmt.Printf("\n%-14s %s\n", "PERSONNEL", "STATION")
	for _, id := range report.PersonnelIDs {
		station := "-"
		if s, ok := report.Stations[id]; ok {
			station = fmt.Sprintf("%d", s)
		}
		fmt.Printf("%-14d %s\n", id, station)
	}
	return nil
}
