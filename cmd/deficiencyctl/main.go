package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/deficiencyreportflow/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)
	root := &cobra.Command{
		Use:          "deficiencyctl",
		Short:        "Run the fire inspection deficiency report pipeline locally",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML file with configuration keys; environment variables take precedence")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRunCmd(&configPath), newExtractCmd(&configPath))
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process every document in Not Processed once and print the batch response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := services.LoadConfigFile(*configPath)
			if err != nil {
				return err
			}
			resp := services.Handle(cmd.Context(), cfg)
			if err := printJSON(cmd, resp); err != nil {
				return err
			}
			if resp.StatusCode != 200 {
				return fmt.Errorf("run failed: %s", resp.Body.Error)
			}
			return nil
		},
	}
}

func newExtractCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file.pdf>",
		Short: "Extract the inspection report from a local PDF without touching storage or the status store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := services.ReadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateExtraction(); err != nil {
				return err
			}
			backend, err := services.NewReportBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			extractor := services.NewReportExtractor(services.PDFTextReader{}, backend, cfg.ExtractorConfig())
			report, err := extractor.Extract(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			content, err := report.MarshalArtifact()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(content))
			return err
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}
