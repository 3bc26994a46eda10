// Package cli provides the command-line interface for Marionette
package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marionette/marionette/pkg/logger"
)

var (
	cfgFile   string
	verbosity string
	version   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "marionette",
	Short: "Lifecycle orchestration for pluggable units",
	Long: `🎭 Marionette - Dependency-ordered lifecycle orchestration

Marionette reads unit manifests, resolves their dependency graph, and
brings the units up and down in the right order. Handlers observe and
veto every step of the way.`,

	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("🎭 Marionette v%s\n", version)
			return
		}
		cmd.Help()
	},
}

// Execute runs the CLI
func Execute(v string) error {
	version = v
	initializeRootCommand()
	return rootCmd.Execute()
}

// initializeRootCommand sets up the root command and its flags.
// This replaces the init() function to make initialization explicit and testable.
func initializeRootCommand() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: marionette.config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&verbosity, "verbosity", "v", "info", "log level (debug, info, warn, error)")

	rootCmd.Flags().Bool("version", false, "Print version information and quit")

	rootCmd.AddCommand(newUpCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("marionette.config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MARIONETTE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbosity == "debug" {
			fmt.Println("Using config file:", viper.ConfigFileUsed())
		}
	}
}

// Helper functions

func newLogger() logger.Logger {
	return logger.CreateLoggerWithOutput(verbosity, os.Stderr)
}

func printSuccess(message string) {
	fmt.Printf("🎭 %s %s\n", color.GreenString("[Marionette]"), message)
}

func printError(message string) {
	fmt.Fprintf(os.Stderr, "🎭 %s %s\n", color.RedString("[Marionette]"), message)
}

func printInfo(message string) {
	fmt.Printf("🎭 %s %s\n", color.CyanString("[Marionette]"), message)
}
