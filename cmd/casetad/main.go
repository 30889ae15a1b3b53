// casetad - Lutron Caseta LEAP daemon
//
// casetad maintains a persistent LEAP session to a Lutron Caseta Smart
// Bridge over mutual TLS. It caches devices and scenes, follows zone level
// changes pushed by the bridge, and optionally mirrors state and commands
// over MQTT with zone telemetry exported to InfluxDB.
//
// One-shot verbs (devices, scenes, set, on, off, scene) connect, act,
// print, and exit; `casetad serve` runs the long-lived daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configFlag is the --config persistent flag value.
var configFlag string

var rootCmd = &cobra.Command{
	Use:   "casetad",
	Short: "Lutron Caseta LEAP bridge daemon",
	Long: `casetad maintains a persistent session to a Lutron Caseta Smart Bridge
over the LEAP protocol (line-delimited JSON over mutual TLS, port 8081).

It caches devices and scenes, follows zone level changes pushed by the
bridge, and can mirror state and commands over MQTT.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "",
		"path to config file (default "+defaultConfigPath+", or CASETA_CONFIG)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(scenesCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(onCmd)
	rootCmd.AddCommand(offCmd)
	rootCmd.AddCommand(sceneCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("casetad %s (commit %s, built %s)\n", version, commit, date)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getConfigPath returns the configuration file path.
// Precedence: --config flag, CASETA_CONFIG environment variable, default.
func getConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	if path := os.Getenv("CASETA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
