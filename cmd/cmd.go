// Package cmd wires the trojascan CLI: configure trains on a model corpus,
// infer scores a single model against the learned artifacts.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"trojascan/detector"
	"trojascan/metaparams"
	"trojascan/version"
	"trojascan/weights"
)

func newDetector(cmd *cobra.Command) (*detector.Detector, error) {
	metaPath, _ := cmd.Flags().GetString("metaparameters")
	learnedDir, _ := cmd.Flags().GetString("learned-parameters")

	meta, err := metaparams.Load(metaPath)
	if err != nil {
		return nil, err
	}

	return detector.New(meta, weights.DefaultArchTable(), learnedDir), nil
}

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trojascan",
		Short: "Weight-analysis trojan detector for image classifiers",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true

			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().String("metaparameters", "metaparameters.json", "Path to the metaparameters file")
	rootCmd.PersistentFlags().String("learned-parameters", "learned_parameters", "Directory holding learned artifacts")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	cobra.EnableCommandSorting = false

	configureCmd := &cobra.Command{
		Use:   "configure MODELS_DIR",
		Short: "Train the detector on a corpus of labeled models",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDetector(cmd)
			if err != nil {
				return err
			}
			return d.Configure(cmd.Context(), args[0])
		},
	}

	inferCmd := &cobra.Command{
		Use:   "infer MODEL_DIR RESULT_FILE",
		Short: "Score one model and write its trojan probability",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDetector(cmd)
			if err != nil {
				return err
			}
			return d.Infer(args[0], args[1])
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(os.Stdout, version.Version)
		},
	}

	rootCmd.AddCommand(configureCmd, inferCmd, versionCmd)

	return rootCmd
}
