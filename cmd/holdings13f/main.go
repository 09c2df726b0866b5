// holdings13f pulls SEC Form 13F filings of large manager complexes and
// builds per-manager ownership panels for a watch list of securities.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seenimoa/holdings13f/internal/config"
	"github.com/seenimoa/holdings13f/internal/infra"
	"github.com/seenimoa/holdings13f/internal/match"
	"github.com/seenimoa/holdings13f/internal/pipeline"
	"github.com/seenimoa/holdings13f/internal/store"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger
var (
	cfg *config.Config
	log *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "holdings13f",
	Short: "Institutional 13F holdings panels from SEC EDGAR",
	Long: `holdings13f scans the EDGAR full index for 13F filings of the configured
manager groups, extracts the holdings of a watch list of securities, attaches
issuer share counts and reconciles everything into one position per group,
security and quarter.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Logging.Level
		if l, _ := cmd.Flags().GetString("log-level"); l != "" {
			level = l
		}
		log, err = infra.NewLogger(level, cfg.Logging.Format)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(statusCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newSession() (*pipeline.Session, error) {
	tickers, err := match.LoadTickerMap(cfg.Tickers.CSVPath)
	if err != nil {
		return nil, fmt.Errorf("ticker list %s: %w", cfg.Tickers.CSVPath, err)
	}
	return pipeline.NewSession(cfg, tickers, log)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("holdings13f %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Run Command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Pull filings and write the holdings tables",
	Long: `Pull 13F filings for every configured manager group and write either the
de-duplicated raw records (--mode raw) or the consolidated panels and the
cross-group aggregate (--mode panel) as CSV. Results are also recorded in
the SQLite run store unless --no-db is given.

Examples:
  holdings13f run
  holdings13f run --mode raw --out ./out
  holdings13f run --tickers ./ticker_cusip.csv --auto-cik`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		out, _ := cmd.Flags().GetString("out")
		dbPath, _ := cmd.Flags().GetString("db")
		noDB, _ := cmd.Flags().GetBool("no-db")
		if t, _ := cmd.Flags().GetString("tickers"); t != "" {
			cfg.Tickers.CSVPath = t
		}
		if cmd.Flags().Changed("auto-cik") {
			cfg.AutoCIK.Enabled, _ = cmd.Flags().GetBool("auto-cik")
		}
		if mode == "" {
			mode = cfg.Output.Mode
		}
		mode = strings.ToLower(strings.TrimSpace(mode))
		if mode != pipeline.ModeRaw && mode != pipeline.ModePanel {
			return fmt.Errorf("unknown mode %q (want raw or panel)", mode)
		}
		if out == "" {
			out = cfg.Output.Dir
		}
		if dbPath == "" {
			dbPath = cfg.Output.DBPath
		}

		ctx, cancel := signalContext()
		defer cancel()

		session, err := newSession()
		if err != nil {
			return err
		}
		res, err := session.Run(ctx)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(out, 0o755); err != nil {
			return err
		}
		paths, err := res.WriteFiles(out, mode)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Printf("wrote %s\n", p)
		}

		if !noDB {
			st, err := store.Open(ctx, dbPath)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := res.Persist(ctx, st, mode); err != nil {
				return err
			}
			fmt.Printf("recorded run %s in %s\n", res.RunID, dbPath)
		}

		fmt.Printf("filings: %d discovered, %d processed; records: %d; requests: %d\n",
			res.Filings, res.Processed, res.Records(), session.Requests())
		if n := len(res.Corrections); n > 0 {
			fmt.Printf("share-count corrections logged: %d\n", n)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("mode", "", "output mode: raw or panel (default from config)")
	runCmd.Flags().String("out", "", "output directory (default from config)")
	runCmd.Flags().String("db", "", "SQLite run store path (default from config)")
	runCmd.Flags().Bool("no-db", false, "do not record the run in the SQLite store")
	runCmd.Flags().String("tickers", "", "ticker/CUSIP CSV path (default from config)")
	runCmd.Flags().Bool("auto-cik", false, "discover additional filer CIKs by group keywords")
}

// --- Discover Command ---

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List each group's filer CIKs and discovered 13F filings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("auto-cik") {
			cfg.AutoCIK.Enabled, _ = cmd.Flags().GetBool("auto-cik")
		}
		ctx, cancel := signalContext()
		defer cancel()

		session, err := newSession()
		if err != nil {
			return err
		}
		disc, err := session.Discover(ctx)
		if err != nil {
			return err
		}
		byGroup := disc.ByGroup()
		for _, g := range cfg.Groups {
			ciks := disc.GroupCIKs[g.Name]
			fmt.Printf("%-12s %3d CIKs  %5d filings\n", g.Name, len(ciks), len(byGroup[g.Name]))
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				fmt.Printf("  %s\n", strings.Join(ciks, " "))
			}
		}
		fmt.Printf("watching %d CUSIPs for %d tickers\n", len(session.WatchList()), len(session.Tickers()))
		fmt.Printf("requests: %d\n", session.Requests())
		return nil
	},
}

func init() {
	discoverCmd.Flags().Bool("auto-cik", false, "discover additional filer CIKs by group keywords")
	discoverCmd.Flags().BoolP("verbose", "v", false, "print the CIKs of each group")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  holdings13f Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Println()

		fmt.Println("  Configuration:")
		ua := cfg.SEC.UserAgent
		if ua == "" {
			ua = "❌ not set"
		}
		fmt.Printf("    User agent:    %s\n", ua)
		fmt.Printf("    Groups:        %s\n", strings.Join(cfg.GroupNames(), ", "))
		fmt.Printf("    Filed since:   %s\n", cfg.Scan.StartFilingDate)
		fmt.Printf("    Min report:    %s\n", cfg.Scan.MinReportDate)
		fmt.Printf("    Auto CIK:      %t (max %d)\n", cfg.AutoCIK.Enabled, cfg.AutoCIK.Max)
		if tm, err := match.LoadTickerMap(cfg.Tickers.CSVPath); err != nil {
			fmt.Printf("    Tickers:       %s (❌ %v)\n", cfg.Tickers.CSVPath, err)
		} else {
			fmt.Printf("    Tickers:       %s (%d: %s)\n", cfg.Tickers.CSVPath, tm.Len(), tickerSummary(tm.Tickers(), 8))
		}
		fmt.Printf("    Output:        %s (%s)\n", cfg.Output.Dir, cfg.Output.Mode)
		fmt.Printf("    Run store:     %s\n", cfg.Output.DBPath)
		fmt.Println()

		if _, err := os.Stat(cfg.Output.DBPath); errors.Is(err, os.ErrNotExist) {
			fmt.Println("  No runs recorded yet.")
			fmt.Println("═══════════════════════════════════════")
			return nil
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		st, err := store.Open(ctx, cfg.Output.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
		runs, err := st.Runs(ctx, limit)
		if err != nil {
			return err
		}

		fmt.Println("  Recent runs:")
		for _, r := range runs {
			finished := "running"
			if !r.FinishedAt.IsZero() {
				finished = r.FinishedAt.Format("2006-01-02 15:04")
			}
			fmt.Printf("    %s  %-5s  %-16s  filings %-5d records %-6d %s\n",
				shortID(r.ID), r.Mode, finished, r.Filings, r.Records, strings.Join(r.Groups, ","))
		}
		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("limit", 10, "number of runs to show")
}

// shortID abbreviates a run ID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// tickerSummary joins up to n tickers, noting how many were left out.
func tickerSummary(tickers []string, n int) string {
	if len(tickers) <= n {
		return strings.Join(tickers, " ")
	}
	return fmt.Sprintf("%s +%d more", strings.Join(tickers[:n], " "), len(tickers)-n)
}
