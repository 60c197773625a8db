package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/nao1215/webaudit/internal/config"
	"github.com/nao1215/webaudit/internal/database"
	"github.com/nao1215/webaudit/internal/model"
	"github.com/nao1215/webaudit/internal/report"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show previous scans",
		Long: `History reads the scans saved by previous runs of scan.

Without --id it lists the stored scans, newest first. With --id it prints
the report of that scan, or only its findings at or above --min-severity.

Examples:
  # List the last 20 scans
  webaudit history

  # List scans of one target
  webaudit history --target https://example.com/

  # Print a stored report as Markdown
  webaudit history --id 3f0c... --markdown

  # Print high and critical findings of a scan
  webaudit history --id 3f0c... --min-severity high

  # Delete a scan
  webaudit history --delete 3f0c...`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("target", "", "Only list scans of this target")
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of scans to list (0 = all)")
	cmd.Flags().Bool("targets", false, "List scanned targets instead of scans")
	cmd.Flags().String("id", "", "Print the stored report with this ID")
	cmd.Flags().String("min-severity", "", "With --id, only print findings at or above this severity")
	cmd.Flags().String("delete", "", "Delete the stored scan with this ID")
	cmd.Flags().BoolP("json", "j", false, "Print the report as JSON")
	cmd.Flags().Bool("markdown", false, "Print the report as Markdown")
	cmd.Flags().String("db-dir", "", "History database directory (default: XDG data directory)")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")
	cmd.MarkFlagsMutuallyExclusive("id", "delete", "targets")

	return cmd
}

// historyOptions holds the parsed history flags.
type historyOptions struct {
	target      string
	limit       int
	targets     bool
	id          string
	minSeverity string
	deleteID    string
	format      string
	dbDir       string
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	opts, err := buildHistoryOptions(cmd)
	if err != nil {
		return err
	}

	store, err := database.Open(opts.dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case opts.deleteID != "":
		if err := store.DeleteScan(ctx, opts.deleteID); err != nil {
			return fmt.Errorf("failed to delete scan: %w", err)
		}
		fmt.Fprintf(out, "Deleted scan %s\n", opts.deleteID)
		return nil
	case opts.targets:
		return printTargets(ctx, out, store)
	case opts.id != "" && opts.minSeverity != "":
		return printFindings(ctx, out, store, opts)
	case opts.id != "":
		return printStoredReport(ctx, out, store, opts)
	default:
		return printScans(ctx, out, store, opts)
	}
}

// buildHistoryOptions reads the history flags.
func buildHistoryOptions(cmd *cobra.Command) (historyOptions, error) {
	flags := cmd.Flags()
	opts := historyOptions{
		format: report.FormatText,
		dbDir:  config.XDGDataDir(),
	}

	var err error
	if opts.target, err = flags.GetString("target"); err != nil {
		return opts, err
	}
	if opts.limit, err = flags.GetInt("limit"); err != nil {
		return opts, err
	}
	if opts.targets, err = flags.GetBool("targets"); err != nil {
		return opts, err
	}
	if opts.id, err = flags.GetString("id"); err != nil {
		return opts, err
	}
	if opts.minSeverity, err = flags.GetString("min-severity"); err != nil {
		return opts, err
	}
	if opts.deleteID, err = flags.GetString("delete"); err != nil {
		return opts, err
	}
	if err := overrideString(flags, "db-dir", &opts.dbDir); err != nil {
		return opts, err
	}

	asJSON, err := flags.GetBool("json")
	if err != nil {
		return opts, err
	}
	asMarkdown, err := flags.GetBool("markdown")
	if err != nil {
		return opts, err
	}
	switch {
	case asJSON:
		opts.format = report.FormatJSON
	case asMarkdown:
		opts.format = report.FormatMarkdown
	}

	return opts, nil
}

// printScans lists stored scans as a table.
func printScans(ctx context.Context, out io.Writer, store *database.Store, opts historyOptions) error {
	scans, err := store.ListScans(ctx, opts.target, opts.limit)
	if err != nil {
		return fmt.Errorf("failed to list scans: %w", err)
	}
	if len(scans) == 0 {
		fmt.Fprintln(out, "No scans found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tTARGET\tMODE\tSTATE\tPAGES\tFINDINGS")
	for _, s := range scans {
		state := s.State
		if s.Interrupted {
			state += " (interrupted)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%d\n",
			s.ID,
			s.StartedAt.Local().Format(time.DateTime),
			s.Target,
			s.Mode,
			state,
			s.PagesAudited, s.PagesCrawled,
			s.Total(),
		)
	}
	return tw.Flush()
}

// printTargets lists every scanned target.
func printTargets(ctx context.Context, out io.Writer, store *database.Store) error {
	targets, err := store.ListTargets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list targets: %w", err)
	}
	for _, t := range targets {
		fmt.Fprintln(out, t)
	}
	return nil
}

// printStoredReport writes a stored report in the requested format.
func printStoredReport(ctx context.Context, out io.Writer, store *database.Store, opts historyOptions) error {
	stored, err := store.GetReport(ctx, opts.id)
	if err != nil {
		return fmt.Errorf("failed to load scan: %w", err)
	}
	if stored == nil {
		return fmt.Errorf("scan not found: %s", opts.id)
	}

	writer, err := report.New(opts.format, out, getVersion())
	if err != nil {
		return err
	}
	_, err = writer.Write(stored)
	return err
}

// printFindings lists the findings of one scan at or above the
// minimum severity.
func printFindings(ctx context.Context, out io.Writer, store *database.Store, opts historyOptions) error {
	minSeverity, err := model.ParseSeverity(opts.minSeverity)
	if err != nil {
		return err
	}

	vulns, err := store.Vulnerabilities(ctx, opts.id, minSeverity)
	if err != nil {
		return fmt.Errorf("failed to load findings: %w", err)
	}
	if len(vulns) == 0 {
		fmt.Fprintln(out, "No findings.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tMODULE\tNAME\tURL\tELEMENT\tVARIABLE")
	for _, v := range vulns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Severity, v.Module, v.Name, v.URL, v.Element, orDash(v.Variable))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
