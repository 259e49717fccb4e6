// gatewatch: WebSocket inference and agent gateways with a live metrics dashboard.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/vesaa/gatewatch/internal/app"
	"github.com/vesaa/gatewatch/internal/config"
	"github.com/vesaa/gatewatch/internal/logging"
	"github.com/vesaa/gatewatch/internal/sysinfo"
)

const asciiLogo = `
   __ _  __ _| |_ _____      ____ _| |_ ___| |__
  / _' |/ _' | __/ _ \ \ /\ / / _' | __/ __| '_ \
 | (_| | (_| | ||  __/\ V  V / (_| | || (__| | | |
  \__, |\__,_|\__\___| \_/\_/ \__,_|\__\___|_| |_|
  |___/
`

const version = "v0.1.0"

func printBanner(w io.Writer, mode string) {
	fmt.Fprintln(w, asciiLogo)
	fmt.Fprintf(w, "  ► gatewatch %s  |  Mode: %s\n\n", version, mode)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gatewatch",
		Short: "gatewatch: WebSocket gateways with connection metrics",
		Long: `gatewatch runs two WebSocket servers, an external inference gateway and an
internal agent channel, plus an HTTP dashboard reporting live connection
counts, process metrics and host information.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "Config file (default ./config.yaml or ~/.gatewatch/config.yaml)")

	root.AddCommand(newServerCmd(), newSysinfoCmd(), newVersionCmd())
	return root
}

// loadConfig reads --config when given, otherwise the default search paths.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// ── server subcommand ─────────────────────────────────────────────────────────

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the gateways (9001 external, 3001 internal) and dashboard (3000)",
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// CLI flags override config values.
			if p, _ := cmd.Flags().GetInt("external-port"); p != 0 {
				cfg.ExternalPort = p
			}
			if p, _ := cmd.Flags().GetInt("internal-port"); p != 0 {
				cfg.InternalPort = p
			}
			if p, _ := cmd.Flags().GetInt("dashboard-port"); p != 0 {
				cfg.DashboardPort = p
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printBanner(out, "SERVER")

			logs, err := logging.New(cfg, os.Stderr)
			if err != nil {
				return fmt.Errorf("initializing logging: %w", err)
			}
			defer logs.Close()

			gin.SetMode(gin.ReleaseMode)

			a, err := app.New(cfg, logs.Logger,
				app.WithLogFiles(logs.Files()),
				app.WithStartTime(started),
			)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "  ✓ External gateway → ws://%s\n", cfg.ExternalAddr())
			fmt.Fprintf(out, "  ✓ Internal gateway → ws://%s\n", cfg.InternalAddr())
			fmt.Fprintf(out, "  ✓ Dashboard        → http://%s\n\n", cfg.DashboardAddr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
	cmd.Flags().Int("external-port", 0, "External gateway port (overrides config)")
	cmd.Flags().Int("internal-port", 0, "Internal gateway port (overrides config)")
	cmd.Flags().Int("dashboard-port", 0, "Dashboard port (overrides config)")
	return cmd
}

// ── sysinfo subcommand ────────────────────────────────────────────────────────

func newSysinfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sysinfo",
		Short: "Print host information as JSON and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if noBattery, _ := cmd.Flags().GetBool("no-battery"); noBattery {
				cfg.IncludeBattery = false
			}

			logs, err := logging.New(&config.Config{LogLevel: "warn", LogFormat: cfg.LogFormat}, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			collector := sysinfo.NewCollector(sysinfo.NewHostSource(), cfg.IncludeBattery, logs.Logger)
			info, err := collector.Collect(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
	cmd.Flags().Bool("no-battery", false, "Skip the battery facet")
	return cmd
}

// ── version subcommand ────────────────────────────────────────────────────────

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print gatewatch version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gatewatch %s\n", version)
		},
	}
}
