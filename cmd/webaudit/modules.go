package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/nao1215/webaudit/internal/audit"
	"github.com/nao1215/webaudit/internal/config"
	"github.com/spf13/cobra"
)

// NewModulesCmd creates the modules command.
func NewModulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List available check modules",
		Long: `Modules lists every check module that can be passed to scan --modules.

Each module is loaded once to read its metadata and unloaded again.

Examples:
  webaudit modules
  webaudit modules --json`,
		Args: cobra.NoArgs,
		RunE: runModulesCmd,
	}

	cmd.Flags().BoolP("json", "j", false, "Output module metadata as JSON")

	return cmd
}

// runModulesCmd executes the modules command.
func runModulesCmd(cmd *cobra.Command, _ []string) error {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	logger := newLogger(cmd, false, false)

	// Every audit option is enabled so that listing never depends on flags.
	cfg := config.NewScanConfig()
	cfg.AuditLinks, cfg.AuditForms, cfg.AuditCookies = true, true, true
	registry, err := newRegistry(cfg, logger)
	if err != nil {
		return err
	}

	infos, err := audit.ListModules(registry)
	if err != nil {
		return fmt.Errorf("failed to list modules: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tNAME\tVERSION\tDEPENDS ON\tDESCRIPTION")
	for _, info := range infos {
		deps := strings.Join(info.Dependencies, ",")
		if deps == "" {
			deps = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			info.ModName, info.Name, info.Version, deps, info.Description)
	}
	return tw.Flush()
}
