package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"basegraph.app/scribe/common/id"
	"basegraph.app/scribe/common/logger"
	"basegraph.app/scribe/common/otel"
	"basegraph.app/scribe/core/config"
	"basegraph.app/scribe/core/db"
	"basegraph.app/scribe/internal/brain"
	"basegraph.app/scribe/internal/participant"
	"basegraph.app/scribe/internal/service"
	"basegraph.app/scribe/internal/store"
)

const defaultCompany = "Microsoft"

type options struct {
	company string
	output  string
	pdf     bool
}

// builder sets up everything a run needs and returns a cleanup to call when
// the run is over.
type builder func(ctx context.Context, opts options) (service.ReportService, func(), error)

func newRootCmd(build builder) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:          "reportgen",
		Short:        "Generate a financial report through a researcher, writer and editor conversation",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, build)
		},
	}

	cmd.Flags().StringVarP(&opts.company, "company", "c", "", "company to report on (prompted for when empty)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "directory for report files (overrides REPORT_OUTPUT_DIR)")
	cmd.Flags().BoolVar(&opts.pdf, "pdf", false, "also render the report as PDF")

	return cmd
}

func run(cmd *cobra.Command, opts options, build builder) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Financial Report Generator")
	fmt.Fprintln(out, "==========================")

	if strings.TrimSpace(opts.company) == "" {
		company, err := promptCompany(cmd.InOrStdin(), out)
		if err != nil {
			return err
		}
		opts.company = company
	}
	fmt.Fprintf(out, "Generating financial report for: %s\n", opts.company)

	svc, cleanup, err := build(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Fprintf(out, "\n[user]: %s\n\n", participant.InitialPrompt(opts.company))
	result, err := svc.Generate(ctx, opts.company, printMessages(out))
	if err != nil {
		return fmt.Errorf("generating report: %w", err)
	}

	conv := result.Conversation
	fmt.Fprintf(out, "\nConversation finished: %s after %d messages\n", conv.StopReason, len(conv.History))
	if !result.Found {
		fmt.Fprintln(out, "No final report was found in the conversation.")
		return nil
	}
	if result.Files.MarkdownPath != "" {
		fmt.Fprintf(out, "Report saved to: %s\n", result.Files.MarkdownPath)
	}
	if result.Files.PDFPath != "" {
		fmt.Fprintf(out, "PDF saved to: %s\n", result.Files.PDFPath)
	}
	return nil
}

func promptCompany(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprintf(out, "Enter the company name for financial report preparation (default: %s): ", defaultCompany)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading company name: %w", err)
	}
	if company := strings.TrimSpace(line); company != "" {
		return company, nil
	}
	return defaultCompany, nil
}

func printMessages(out io.Writer) brain.Observer {
	return brain.ObserverFunc(func(ctx context.Context, ev brain.MessageEvent) error {
		_, err := fmt.Fprintf(out, "[%s]: %s\n\n", ev.Message.Speaker, ev.Message.Text)
		return err
	})
}

// buildService loads configuration for the command line, applies flag
// overrides and connects the optional run archive.
func buildService(ctx context.Context, opts options) (service.ReportService, func(), error) {
	cfg, err := config.Load(config.ServiceTypeCLI)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.output != "" {
		cfg.Report.OutputDir = opts.output
	}
	if opts.pdf {
		cfg.Report.PDF = true
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing otel: %w", err)
	}
	logger.Setup(cfg)

	if err := id.Init(2); err != nil {
		return nil, nil, fmt.Errorf("initializing id generator: %w", err)
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	if telemetry != nil {
		closers = append(closers, func() {
			if err := telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
				slog.Error("otel shutdown error", "error", err)
			}
		})
	}

	var backends service.Backends
	if cfg.DB.Enabled() {
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		closers = append(closers, database.Close)

		runs := store.NewReportRunStore(database.Pool())
		if err := runs.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("migrating report_runs: %w", err)
		}
		backends.Runs = runs
	}

	svc, err := service.NewReportServiceFromConfig(cfg, backends, slog.Default())
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}
