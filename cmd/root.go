// Package cmd wires the funcbox CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Build metadata injected via ldflags.
var (
	BuildVersion = "dev"
	BuildCommit  = "none"
	BuildDate    = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "funcbox",
	Short: "funcbox - local function execution emulator",
	Long: `Funcbox runs a single piece of user code inside an ephemeral container,
feeds it an invocation event over the local runtime endpoint and collects
its output.`,
}

// ExecuteCLI runs the root command with build metadata from the linker.
func ExecuteCLI(version, commit, date string) {
	if version != "" {
		BuildVersion = version
	}
	if commit != "" {
		BuildCommit = commit
	}
	if date != "" {
		BuildDate = date
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./funcbox.toml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
}

func initConfig() {
	// A local .env is optional; ignore a missing file.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("funcbox")
		viper.SetConfigType("toml")
		viper.AddConfigPath(".")

		if userConfigDir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(userConfigDir + "/funcbox")
		}
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		log.Fatal("failed to read config file", "path", cfgFile, "error", err)
	}

	if debug, _ := rootCmd.PersistentFlags().GetBool("debug"); debug {
		log.SetLevel(log.DebugLevel)
	}
}
