package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftstack/driftgate/internal/registry"
	"github.com/driftstack/driftgate/internal/services"
	"github.com/driftstack/driftgate/internal/stats"
)

var (
	validateSchemasDir  string
	validateDataset     string
	validateStatsPath   string
	validateControlPath string
	validateControlKind string
	validateByWeight    bool
	validateCalibrate   bool

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Validate a statistics file against its declared comparators",
		Long: `validate runs one dataset's comparators against a statistics JSON file
and prints the result to stdout. Without --calibrate an anomalous dataset
exits non-zero; with --calibrate the widened bounds are written back to
the schema pack and the command exits zero.`,
		RunE: runValidate,
	}
)

func init() {
	validateCmd.Flags().StringVar(&validateSchemasDir, "schemas", "configs/schemas", "directory holding constraint packs")
	validateCmd.Flags().StringVar(&validateDataset, "dataset", "", "dataset to validate")
	validateCmd.Flags().StringVar(&validateStatsPath, "stats", "", "path to the current statistics JSON file")
	validateCmd.Flags().StringVar(&validateControlPath, "control", "", "path to the control statistics JSON file")
	validateCmd.Flags().StringVar(&validateControlKind, "control-kind", "drift", "control link the file fills (drift or version)")
	validateCmd.Flags().BoolVar(&validateByWeight, "by-weight", false, "compare weighted example counts")
	validateCmd.Flags().BoolVar(&validateCalibrate, "calibrate", false, "persist widened bounds back to the schema pack")
	_ = validateCmd.MarkFlagRequired("dataset")
	_ = validateCmd.MarkFlagRequired("stats")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	reg, err := registry.New(validateSchemasDir, logger)
	if err != nil {
		return fmt.Errorf("load schema registry: %w", err)
	}

	current, err := readStatistics(validateStatsPath)
	if err != nil {
		return err
	}

	req := services.ValidationRequest{
		Dataset:  validateDataset,
		ByWeight: validateByWeight,
		Current:  current,
	}
	if validateCalibrate {
		req.Mode = string(services.ModeCalibrate)
	}

	if validateControlPath != "" {
		control, err := readStatistics(validateControlPath)
		if err != nil {
			return err
		}
		req.Controls = &services.InlineControls{}
		switch validateControlKind {
		case "drift":
			req.Controls.PreviousSpan = control
		case "version":
			req.Controls.PreviousVersion = control
		default:
			return fmt.Errorf("unknown control kind %q", validateControlKind)
		}
	}

	svc := services.NewValidationService(logger, reg, nil, services.ModeCheck)
	result, err := svc.ValidateSnapshot(cmd.Context(), req)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if result.Anomalous && !validateCalibrate {
		return fmt.Errorf("dataset %s: example count outside declared bounds", validateDataset)
	}
	return nil
}

func readStatistics(path string) (*stats.DatasetStatistics, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read statistics: %w", err)
	}
	var ds stats.DatasetStatistics
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("parse statistics %s: %w", path, err)
	}
	return &ds, nil
}
