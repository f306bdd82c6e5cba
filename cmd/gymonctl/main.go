package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const appName = "gymonctl"

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Control daemon for the Gymea service",
	Long: `gymonctl accepts framed text requests on a TCP port and starts, stops,
restarts or queries Gymea instances through the service control tool.

Without a subcommand it runs the daemon (same as "gymonctl serve").`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	addDaemonFlags(rootCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.SetVersionTemplate(fmt.Sprintf("%s %s\n", appName, version))
}

func addDaemonFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "path to a TOML config file")
	flags.BoolP("console", "c", false, "log to the console instead of the log file")
	flags.IntP("port", "p", 0, "listening port (overrides the config file)")
	flags.String("admin-addr", "", "admin HTTP listen address (overrides the config file)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}
