// Command borrowfacts shrinks the control-flow graph of borrow-checker
// input facts and stores, lists and exports the resulting fact sets.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dan-solli/borrowfacts/pkg/borrowfacts"
	"github.com/dan-solli/borrowfacts/pkg/metrics"
)

// options carries flag values and the state shared by all subcommands.
type options struct {
	configPath string
	logLevel   string

	db            string
	jobs          int
	out           string
	mangle        string
	trace         string
	metricsFile   string
	skipSimplify  bool
	skipProcessed bool
	jsonOutput    bool

	cfg    *fileConfig
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:   "borrowfacts",
		Short: "Simplify and store borrow-checker input facts",
		Long: `borrowfacts reads directories of tab-separated borrow-checker facts
(one <relation>.facts file per relation), collapses straight-line runs of
the control-flow graph that carry no facts, and writes the reduced fact
sets to a SQLite store, back to .facts files or to a Mangle program.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&o.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&o.db, "db", "", "SQLite database path (default: in-memory)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(o.simplifyCmd())
	root.AddCommand(o.statsCmd())
	root.AddCommand(o.listCmd())
	root.AddCommand(o.checkoutCmd())
	return root
}

// setup loads the config file, lets explicit flags override it and builds
// the logger.
func (o *options) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DB = o.db
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("jobs") {
		cfg.Jobs = o.jobs
	}
	if flags.Changed("out") {
		cfg.Out = o.out
	}
	if flags.Changed("mangle") {
		cfg.Mangle = o.mangle
	}
	if flags.Changed("trace") {
		cfg.Trace = o.trace
	}
	if flags.Changed("skip-simplify") {
		cfg.SkipSimplify = o.skipSimplify
	}
	if flags.Changed("skip-processed") {
		cfg.SkipProcessed = o.skipProcessed
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = logger
	return nil
}

func (o *options) pipelineConfig() borrowfacts.Config {
	return borrowfacts.Config{
		DBPath:        o.cfg.DB,
		SkipSimplify:  o.cfg.SkipSimplify,
		SkipProcessed: o.cfg.SkipProcessed,
		OutputDir:     o.cfg.Out,
		MangleOutput:  o.cfg.Mangle,
		TraceEnabled:  o.cfg.Trace != "",
		TracePath:     o.cfg.Trace,
		Jobs:          o.cfg.Jobs,
	}
}

func (o *options) openPipeline(cfg borrowfacts.Config) (*borrowfacts.Pipeline, error) {
	p, err := borrowfacts.New(cfg)
	if err != nil {
		return nil, err
	}
	return p.WithLogger(o.logger), nil
}

func (o *options) simplifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simplify [dirs...]",
		Short: "Simplify the CFG of one or more facts directories",
		Args:  cobra.MinimumNArgs(1),
		RunE:  o.runSimplify,
	}
	cmd.Flags().IntVarP(&o.jobs, "jobs", "j", 1, "Fact sets processed in parallel")
	cmd.Flags().StringVar(&o.out, "out", "", "Write reduced facts to <out>/<name>/")
	cmd.Flags().StringVar(&o.mangle, "mangle", "", "Write reduced facts as Mangle programs to <mangle>/<name>.mg")
	cmd.Flags().StringVar(&o.trace, "trace", "", "JSON Lines trace file (requires a tracing build)")
	cmd.Flags().StringVar(&o.metricsFile, "metrics-file", "", "Write Prometheus metrics in text format after the run")
	cmd.Flags().BoolVar(&o.skipSimplify, "skip-simplify", false, "Store facts without simplifying")
	cmd.Flags().BoolVar(&o.skipProcessed, "skip-processed", false, "Reuse stored fact sets whose source files are unchanged")
	cmd.Flags().BoolVar(&o.jsonOutput, "json", false, "Print results as JSON")
	return cmd
}

func (o *options) runSimplify(cmd *cobra.Command, args []string) error {
	p, err := o.openPipeline(o.pipelineConfig())
	if err != nil {
		return err
	}
	defer p.Close()

	var collector *metrics.MetricsCollector
	if o.metricsFile != "" {
		collector = metrics.NewCollector()
		p.WithMetrics(collector)
	}

	results, runErr := p.ProcessAll(cmd.Context(), args)

	if collector != nil {
		if err := collector.WriteTextfile(o.metricsFile); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	done := make([]*borrowfacts.Result, 0, len(results))
	for _, res := range results {
		if res != nil {
			done = append(done, res)
		}
	}
	if err := o.printResults(cmd.OutOrStdout(), done); err != nil {
		return err
	}
	return runErr
}

func (o *options) printResults(w io.Writer, results []*borrowfacts.Result) error {
	if o.jsonOutput {
		return writeJSON(w, results)
	}
	for _, res := range results {
		reused := ""
		if res.Reused {
			reused = " (reused)"
		}
		fmt.Fprintf(w, "%s %s: edges %d -> %d, chains %d, collapses %d%s\n",
			res.Name, res.FactSetID,
			res.Stats.EdgesBefore, res.Stats.EdgesAfter,
			res.Stats.Chains, res.Stats.Collapses, reused)
	}
	return nil
}

func (o *options) statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [dirs...]",
		Short: "Print relation counts and chain structure without simplifying",
		Args:  cobra.MinimumNArgs(1),
		RunE:  o.runStats,
	}
	cmd.Flags().BoolVar(&o.jsonOutput, "json", false, "Print reports as JSON")
	return cmd
}

func (o *options) runStats(cmd *cobra.Command, args []string) error {
	// Inspect never touches the store.
	p, err := o.openPipeline(borrowfacts.Config{})
	if err != nil {
		return err
	}
	defer p.Close()

	reports := make([]*borrowfacts.Report, 0, len(args))
	for _, dir := range args {
		rep, err := p.Inspect(cmd.Context(), dir)
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		reports = append(reports, rep)
	}

	if o.jsonOutput {
		return writeJSON(cmd.OutOrStdout(), reports)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DIR\tTUPLES\tCFG_EDGES\tPOINTS\tREGIONS\tLOANS\tISOLATED\tCHAINS\tLONGEST")
	for _, rep := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			rep.Dir, rep.Counts.Total(), rep.Counts.CFGEdge,
			rep.Points, rep.Regions, rep.Loans,
			rep.IsolatedEdges, rep.Chains, rep.LongestChain)
	}
	return tw.Flush()
}

func (o *options) listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List fact sets stored in --db",
		Args:  cobra.NoArgs,
		RunE:  o.runList,
	}
	cmd.Flags().BoolVar(&o.jsonOutput, "json", false, "Print summaries as JSON")
	return cmd
}

func (o *options) runList(cmd *cobra.Command, args []string) error {
	if o.cfg.DB == "" {
		return fmt.Errorf("list requires --db")
	}
	p, err := o.openPipeline(borrowfacts.Config{DBPath: o.cfg.DB})
	if err != nil {
		return err
	}
	defer p.Close()

	sets, err := p.ListFactSets(cmd.Context())
	if err != nil {
		return err
	}

	if o.jsonOutput {
		return writeJSON(cmd.OutOrStdout(), sets)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIMPLIFIED\tTUPLES\tCREATED\tSOURCE")
	for _, s := range sets {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\t%s\n",
			s.ID, s.Name, s.Simplified, s.TupleCount,
			s.CreatedAt.Format("2006-01-02 15:04:05"), s.Source)
	}
	return tw.Flush()
}

func (o *options) checkoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <fact-set-id> <dir>",
		Short: "Write a stored fact set back out as .facts files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.cfg.DB == "" {
				return fmt.Errorf("checkout requires --db")
			}
			p, err := o.openPipeline(borrowfacts.Config{DBPath: o.cfg.DB})
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.Checkout(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
