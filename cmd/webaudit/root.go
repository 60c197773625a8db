package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nao1215/webaudit/internal/config"
	"github.com/nao1215/webaudit/internal/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for webaudit.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webaudit",
		Short: "Web application vulnerability scanner",
		Long: `webaudit crawls a web application and audits every page it finds
with a set of check modules run concurrently.

Modules either run while the site is crawled (immediate mode) or once the
crawl is over (deferred mode, --mods-run-last). Press Ctrl+C once to
interrupt a scan gracefully and twice to abort it.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")

	// Add subcommands
	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewModulesCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	config.DefaultUserAgent = "webaudit/" + strings.TrimPrefix(getVersion(), "v")

	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getBoolFlag retrieves a boolean flag from the command or its parent.
// It returns false when the flag is not defined, which happens when a
// subcommand is executed on its own in tests.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// newLogger creates the logger for a command from the global flags.
// verbose and debug are OR-ed with the values coming from the
// configuration file.
func newLogger(cmd *cobra.Command, verbose, debug bool) *slog.Logger {
	level := log.LevelFor(
		verbose || getBoolFlag(cmd, "verbose"),
		debug || getBoolFlag(cmd, "debug"),
	)
	return log.New(cmd.ErrOrStderr(), level, getBoolFlag(cmd, "log-json"))
}
