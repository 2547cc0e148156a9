package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "filemanager",
	Short:   "Manage files on local and S3 storages",
	Long: `filemanager runs the file manager operations from the command line
against the storages described in a config file or in BEAVER_FILEMANAGER_*
environment variables.

Paths are relative to the storage root; folders end with a slash.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		readConfig(cmd)
		setupLogging()
		return openManager(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeRegistry(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./filemanager.yaml, env: FILEMANAGER_CONFIG)")
	rootCmd.PersistentFlags().StringP("storage", "s", "", "storage name (default: local, env: FILEMANAGER_STORAGE)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "output format: table, json, yaml (default: table)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
