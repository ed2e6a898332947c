package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/driftstack/driftgate/internal/registry"
	"github.com/driftstack/driftgate/internal/services"
)

var (
	constrainSchemasDir string
	constrainDataset    string
	constrainKind       string
	constrainMin        float64
	constrainMax        float64

	constrainCmd = &cobra.Command{
		Use:   "constrain",
		Short: "Declare or overwrite a comparator's bounds for a dataset",
		RunE:  runConstrain,
	}
)

func init() {
	constrainCmd.Flags().StringVar(&constrainSchemasDir, "schemas", "configs/schemas", "directory holding constraint packs")
	constrainCmd.Flags().StringVar(&constrainDataset, "dataset", "", "dataset to constrain")
	constrainCmd.Flags().StringVar(&constrainKind, "kind", "drift", "comparator kind (drift or version)")
	constrainCmd.Flags().Float64Var(&constrainMin, "min", 0, "minimum current/control ratio")
	constrainCmd.Flags().Float64Var(&constrainMax, "max", 0, "maximum current/control ratio")
	_ = constrainCmd.MarkFlagRequired("dataset")
}

func runConstrain(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	reg, err := registry.New(constrainSchemasDir, logger)
	if err != nil {
		return fmt.Errorf("load schema registry: %w", err)
	}

	var min, max *float64
	if cmd.Flags().Changed("min") {
		min = &constrainMin
	}
	if cmd.Flags().Changed("max") {
		max = &constrainMax
	}

	svc := services.NewValidationService(logger, reg, nil, services.ModeCheck)
	constraints, err := svc.DeclareConstraint(cmd.Context(), constrainDataset, constrainKind, min, max)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(registry.Pack{Dataset: constrainDataset, Constraints: constraints})
	if err != nil {
		return fmt.Errorf("encode pack: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}
