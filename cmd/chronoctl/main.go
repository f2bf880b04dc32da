package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chronoctl",
		Short: "Inspect and exercise sleep-disorder model artifacts",
		Long: "chronoctl loads a model artifact bundle offline to validate it against the\n" +
			"feature encoder, print its metadata, or run predictions without the API.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}
	root.PersistentFlags().String("artifacts", "models", "Model artifacts directory")

	root.AddCommand(newValidateCmd())
	root.AddCommand(newPredictCmd())
	root.AddCommand(newInfoCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
