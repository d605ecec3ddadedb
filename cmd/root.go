package cmd

import (
	"fmt"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	logFile string
	verbose bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "tarmac-annotate",
	Short: "Annotate tarmac trace files for firmware debugging",
	Long: `tarmac-annotate post-processes instruction-level tarmac traces produced by
RTL simulation of ARM firmware, adding the annotations that make the trace
readable: function entry/exit banners, an abbreviated call tree, recovered C
prototypes, inline listing text, and named accesses to known memory-mapped
variables and registers.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	err := RootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initLogging)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.tarmac-annotate.yaml)")
	RootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write log records to this file")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".tarmac-annotate" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tarmac-annotate")
	}

	setDefaults()

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults records the site conventions the original debug workflow
// relied on. Every key can be overridden from the config file or the
// environment.
func setDefaults() {
	viper.SetDefault("paths.source_root", "")
	viper.SetDefault("paths.tags_root", "")
	viper.SetDefault("paths.info_subdir", "Release/Deliverables/Info")

	viper.SetDefault("listing.default_name", "Project_Assembly")
	viper.SetDefault("listing.extension", ".txt")

	viper.SetDefault("source.extension", ".c")
	viper.SetDefault("source.exclude_markers", []string{"tinycbor"})

	viper.SetDefault("annotate.wfi_leaf_routines", []string{"Main_ResetWakeup", "Reset_Handler_rom"})
	viper.SetDefault("annotate.missing_symbol_warn_threshold", 5)
	viper.SetDefault("annotate.progress_interval", 100000)

	viper.SetDefault("variables", map[string]string{})
}

// initLogging routes slog records to stderr and, when requested, a log
// file, through a single fan-out handler.
func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Cannot open log file:", err)
		} else {
			handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(handlers...)))
}
