package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/report"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/store"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/pkg/apitester"
)

var (
	version = "dev"

	flagConfig     string
	flagInput      string
	flagOutput     string
	flagFormat     string
	flagStorePath  string
	flagResume     string
	flagRPS        float64
	flagMaxEP      int
	flagRetries    int
	flagTimeoutMs  int
	flagVerbose    bool
	flagJSONLogs   bool
	flagSkipVerify bool
)

func main() {
	root := &cobra.Command{
		Use:     "apitester",
		Short:   "Reconstruct API endpoints from traffic captures and verify them live",
		Long:    "apitester parses raw request captures (HAR, curl commands, or devtools text),\nrebuilds the canonical endpoint set, and exercises each endpoint against the\nlive target in priority order with session handling.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (yaml or json)")
	root.PersistentFlags().StringVar(&flagStorePath, "store", "", "path to the run store database")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "structured JSON logs instead of console output")

	root.AddCommand(newScanCmd(), newEndpointsCmd(), newReportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the full verification pipeline over a capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan()
		},
	}

	cmd.Flags().StringVarP(&flagInput, "input", "i", "-", "capture file, or - for stdin")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "report file (format inferred from extension)")
	cmd.Flags().StringVarP(&flagFormat, "format", "f", "json", "report format: json, yaml, csv, text")
	cmd.Flags().StringVar(&flagResume, "resume", "", "run ID whose session state to resume")
	cmd.Flags().Float64Var(&flagRPS, "rps", 0, "requests per second (0 = unpaced)")
	cmd.Flags().IntVar(&flagMaxEP, "max-endpoints", 0, "cap on endpoints exercised per run")
	cmd.Flags().IntVar(&flagRetries, "retries", 0, "attempts per endpoint for transient failures")
	cmd.Flags().IntVar(&flagTimeoutMs, "timeout-ms", 0, "per-request timeout in milliseconds")
	cmd.Flags().BoolVar(&flagSkipVerify, "insecure", true, "skip TLS certificate verification")

	return cmd
}

func newEndpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "Parse a capture and print the reconstructed endpoint set without network calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEndpoints()
		},
	}

	cmd.Flags().StringVarP(&flagInput, "input", "i", "-", "capture file, or - for stdin")
	return cmd
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Show a stored report, or list stored runs when no ID is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runReport(runID)
		},
	}

	cmd.Flags().StringVarP(&flagFormat, "format", "f", "text", "report format: json, yaml, csv, text")
	return cmd
}

// buildConfig layers CLI flags over the config file over defaults.
func buildConfig() (*apitester.Config, error) {
	cfg := apitester.DefaultConfig()
	if flagConfig != "" {
		loaded, err := apitester.LoadFromFile(flagConfig)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flagVerbose {
		cfg.LogLevel = "debug"
	}
	cfg.PrettyLogs = !flagJSONLogs
	if flagStorePath != "" {
		cfg.StorePath = flagStorePath
	}
	if flagResume != "" {
		cfg.ResumeSessionFrom = flagResume
	}
	if flagRPS > 0 {
		cfg.RequestsPerSecond = flagRPS
	}
	if flagMaxEP > 0 {
		cfg.MaxEndpointsPerRun = flagMaxEP
	}
	if flagRetries > 0 {
		cfg.MaxRetries = flagRetries
	}
	if flagTimeoutMs > 0 {
		cfg.PerCallTimeoutMs = flagTimeoutMs
	}
	cfg.SkipTLSVerify = flagSkipVerify
	if flagOutput != "" {
		cfg.OutputFile = flagOutput
	}
	if flagFormat != "" {
		cfg.OutputFormat = flagFormat
	}

	return cfg, cfg.Validate()
}

// readCapture reads the capture text from a file or stdin.
func readCapture() (string, error) {
	if flagInput == "" || flagInput == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read capture from stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(flagInput)
	if err != nil {
		return "", fmt.Errorf("failed to read capture file: %w", err)
	}
	return string(data), nil
}

func runScan() error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	captureText, err := readCapture()
	if err != nil {
		return err
	}

	runner, err := apitester.New(apitester.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer runner.Close()

	// SIGINT and SIGTERM stop the run between endpoints; work already
	// started finishes and everything after is reported as skipped.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, err := runner.Run(ctx, captureText)
	if err != nil {
		return err
	}

	format, err := report.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return err
	}

	writer := report.NewWriter(cfg.PrettyOutput)
	if cfg.OutputFile != "" {
		if err := writer.WriteFile(cfg.OutputFile, rep, format); err != nil {
			return err
		}
		fmt.Printf("Report written to %s (run %s)\n", cfg.OutputFile, rep.RunID)
	} else {
		if err := writer.Write(os.Stdout, rep, format); err != nil {
			return err
		}
	}

	printSummary(rep)
	return nil
}

func runEndpoints() error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	cfg.StorePath = ""

	captureText, err := readCapture()
	if err != nil {
		return err
	}

	runner, err := apitester.New(apitester.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer runner.Close()

	descriptors, cap, err := runner.Endpoints(captureText)
	if err != nil {
		return err
	}

	fmt.Printf("%d records parsed (%d skipped), %d endpoints reconstructed\n\n",
		len(cap.Records), cap.Skipped, len(descriptors))
	for _, d := range descriptors {
		fmt.Printf("%4d  %-8s %-7s %s\n", d.Priority, d.Category, d.Method, d.PathTemplate)
	}
	return nil
}

func runReport(runID string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	if runID == "" {
		runs, err := st.ListRuns()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No stored runs.")
			return nil
		}
		for _, id := range runs {
			fmt.Println(id)
		}
		return nil
	}

	rep, err := st.LoadReport(runID)
	if err != nil {
		return err
	}
	if rep == nil {
		return fmt.Errorf("no report stored for run %s", runID)
	}

	format, err := report.ParseFormat(flagFormat)
	if err != nil {
		return err
	}
	return report.NewWriter(true).Write(os.Stdout, rep, format)
}

func printSummary(rep *report.Report) {
	fmt.Fprintf(os.Stderr, "\nRun %s: %d endpoints, %.1f%% success, session %s\n",
		rep.RunID, rep.Stats.TotalEndpoints, rep.Stats.SuccessRate*100, rep.FinalSessionMode)
	for status, count := range rep.Stats.ByStatus {
		fmt.Fprintf(os.Stderr, "  %-14s %d\n", status, count)
	}
}
