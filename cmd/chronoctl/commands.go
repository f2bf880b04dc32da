package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liamcoop/chronopulse/artifacts"
	"github.com/liamcoop/chronopulse/features"
	"github.com/liamcoop/chronopulse/predictor"
	"github.com/liamcoop/chronopulse/recommend"
)

var errDrift = errors.New("feature schema drift")

func loadStore(cmd *cobra.Command) (*artifacts.Store, error) {
	dir, _ := cmd.Flags().GetString("artifacts")
	store, err := artifacts.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load artifacts from %s: %w", dir, err)
	}
	return store, nil
}

func loadRules(path string) (*recommend.Engine, error) {
	if path == "" {
		return recommend.NewDefaultEngine()
	}
	rs, err := recommend.LoadRuleSet(path)
	if err != nil {
		return nil, err
	}
	return recommend.NewEngine(rs)
}

func newValidateCmd() *cobra.Command {
	var rulesPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load artifacts and check the schema against the encoder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := loadStore(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			meta, _ := store.Metadata()
			fmt.Fprintf(out, "Model:     %s (version %q)\n", meta.ModelName, meta.Version)
			fmt.Fprintf(out, "Classes:   %s\n", strings.Join(meta.Classes, ", "))
			fmt.Fprintf(out, "Features:  %d\n", len(store.Schema()))

			advisor, err := loadRules(rulesPath)
			if err != nil {
				return fmt.Errorf("recommendation rules: %w", err)
			}
			fmt.Fprintf(out, "Rules:     %d\n", len(advisor.Rules()))

			enc, err := features.NewEncoder(store.Categories())
			if err != nil {
				return err
			}
			drift := enc.Audit(store.Schema())
			if drift.Empty() {
				fmt.Fprintln(out, "Schema:    ok")
				return nil
			}
			for _, name := range drift.Unproduced {
				fmt.Fprintf(out, "  never produced by encoder (always 0): %s\n", name)
			}
			for _, name := range drift.Dropped {
				fmt.Fprintf(out, "  produced by encoder but not in schema: %s\n", name)
			}
			return fmt.Errorf("%w: %d unproduced, %d dropped", errDrift, len(drift.Unproduced), len(drift.Dropped))
		},
	}
	cmd.Flags().StringVar(&rulesPath, "rules", "", "Recommendation rule file (YAML); built-in rules when empty")
	return cmd
}

func newPredictCmd() *cobra.Command {
	var inputPath string
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict for a JSON input record",
		Long:  "Reads one input record as JSON from --input (or stdin with -) and prints the prediction.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := loadStore(cmd)
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if inputPath != "-" {
				f, err := os.Open(inputPath)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				r = f
			}

			var rec features.Record
			dec := json.NewDecoder(r)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&rec); err != nil {
				return fmt.Errorf("decode input: %w", err)
			}

			advisor, err := recommend.NewDefaultEngine()
			if err != nil {
				return err
			}
			quiet := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			svc, err := predictor.New(store, advisor, quiet)
			if err != nil {
				return err
			}

			p, err := svc.Predict(context.Background(), rec)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "-", "Input record file, - for stdin")
	return cmd
}

func newInfoCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show model metadata and the feature schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := loadStore(cmd)
			if err != nil {
				return err
			}
			meta, _ := store.Metadata()
			schema := store.Schema()
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"metadata":      meta,
					"feature_names": schema,
				})
			}

			fmt.Fprintf(out, "Model:     %s\n", meta.ModelName)
			if meta.Version != "" {
				fmt.Fprintf(out, "Version:   %s\n", meta.Version)
			}
			fmt.Fprintf(out, "Accuracy:  %.4f\n", meta.Accuracy)
			fmt.Fprintf(out, "Precision: %.4f\n", meta.Precision)
			fmt.Fprintf(out, "Recall:    %.4f\n", meta.Recall)
			fmt.Fprintf(out, "F1:        %.4f\n", meta.F1Score)
			fmt.Fprintf(out, "Classes:   %s\n", strings.Join(meta.Classes, ", "))
			fmt.Fprintf(out, "Features (%d):\n", len(schema))
			for i, name := range schema {
				fmt.Fprintf(out, "  %2d  %s\n", i, name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
