package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/markb/fhirsql/internal/log"
)

// Version information set via ldflags at build time
var (
	Version   = "dev"
	BuildTime = ""
	GitCommit = ""
)

var rootCmd = &cobra.Command{
	Use:     "fhirsql",
	Short:   "fhirsql - compile FHIRPath expressions to SQL",
	Long:    `Compiles FHIRPath expressions into SQL queries over JSON resource stores, for PostgreSQL and SQLite.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := log.DefaultConfig()
		cfg.Level, _ = cmd.Flags().GetString("log-level")
		cfg.Format, _ = cmd.Flags().GetString("log-format")
		return log.Init(cfg)
	},
}

func init() {
	rootCmd.SetVersionTemplate("fhirsql version {{.Version}}\n")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
