package cmd

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-service/internal/pipeline"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Identify the person in an image",
	Long: `Run the recognition pipeline on a local image file against the personnel
enrolled at a station, and print the outcome.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Int("station", 0, "Station ID to match against (required)")
	recognizeCmd.Flags().Float64("min-score", 0, "Override the minimum detection score (0 keeps the configured value)")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
	_ = recognizeCmd.MarkFlagRequired("station")
}

type recognizeOutput struct {
	Success     bool    `json:"success"`
	Outcome     string  `json:"outcome"`
	PersonnelID int64   `json:"personnel_id,omitempty"`
	Confidence  float64 `json:"confidence"`
	Message     string  `json:"message"`
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if minScore := mustGetFloat64(cmd, "min-score"); minScore > 0 {
		cfg.Inference.MinDetScore = minScore
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	ctx := context.Background()
	svcs, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svcs.Close()

	outcome := svcs.pipeline.Recognize(ctx, pipeline.RecognizeInput{
		Image:     base64.StdEncoding.EncodeToString(data),
		StationID: int64(mustGetInt(cmd, "station")),
	})

	out := recognizeOutput{
		Success:     outcome.Success(),
		Outcome:     outcome.Kind.String(),
		PersonnelID: outcome.PersonnelID,
		Confidence:  outcome.Confidence,
		Message:     outcome.Message,
	}
	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Println(out.Message)
	if out.Success {
		fmt.Printf("  Personnel:  %d\n", out.PersonnelID)
		fmt.Printf("  Confidence: %.4f\n", out.Confidence)
	}
	return nil
}
