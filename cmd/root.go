package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lattice-mc/lattice-mc/sim"
)

var (
	// CLI flags shared by run and lte
	seed        int64  // Overrides the settings seed when set
	logLevel    string // Log verbosity level
	outputDir   string // Overrides data.storage.output_directory when set
	parallel    int    // Concurrent independent chains
	metricsAddr string // Address for the Prometheus /metrics endpoint; empty disables it
	traceLevel  string // Overrides trace.level when set
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "lattice-mc",
	Short: "Grand-canonical Monte Carlo for lattice models",
}

func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// loadSettings reads and validates the settings file, applying flag overrides.
func loadSettings(cmd *cobra.Command, path string) *sim.Settings {
	settings, err := sim.LoadSettings(path)
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	if cmd.Flags().Changed("seed") {
		settings.Seed = seed
	}
	if cmd.Flags().Changed("output-dir") {
		settings.Data.Storage.OutputDirectory = outputDir
	}
	if cmd.Flags().Changed("trace-level") {
		settings.Trace.Level = traceLevel
	}
	if err := settings.Validate(); err != nil {
		logrus.Fatalf("%v", err)
	}
	return settings
}

// runCmd executes the Monte Carlo run described by a settings file
var runCmd = &cobra.Command{
	Use:   "run <settings.yaml>",
	Short: "Run grand-canonical Monte Carlo over the configured conditions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		settings := loadSettings(cmd, args[0])

		var reg *prometheus.Registry
		if metricsAddr != "" {
			reg = prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logrus.Errorf("metrics endpoint: %v", err)
				}
			}()
			defer func() { _ = srv.Close() }()
			logrus.Infof("serving metrics on %s/metrics", metricsAddr)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		startTime := time.Now()
		logrus.Infof("Starting Monte Carlo run with seed=%d", settings.Seed)
		results, err := Run(ctx, settings, RunOptions{Parallel: parallel, Registerer: reg, TraceOut: os.Stdout})
		if err != nil {
			logrus.Fatalf("run failed: %v", err)
		}
		sim.NewMetrics(results).Print(os.Stdout, results)
		logrus.Infof("Run complete in %v.", time.Since(startTime).Round(time.Millisecond))
	},
}

// lteCmd prints the low-temperature expansion of the free energy around the
// initial motif at every conditions point
var lteCmd = &cobra.Command{
	Use:   "lte <settings.yaml>",
	Short: "Evaluate the low-temperature expansion around the initial motif",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		settings := loadSettings(cmd, args[0])
		points, err := LTE(settings)
		if err != nil {
			logrus.Fatalf("lte failed: %v", err)
		}
		PrintLTE(os.Stdout, points)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, lteCmd} {
		c.Flags().Int64Var(&seed, "seed", 42, "Seed for the Monte Carlo random stream (overrides the settings file)")
		c.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
		c.Flags().StringVar(&traceLevel, "trace-level", "none", "Decision trace level (none, decisions)")
	}
	runCmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for per-conditions output (overrides the settings file)")
	runCmd.Flags().IntVar(&parallel, "parallel", 1, "Maximum concurrent chains when dependent_runs is false")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(lteCmd)
}
