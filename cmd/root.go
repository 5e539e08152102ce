// cmd/root.go
/*
Copyright © 2025 SeqLab <dev@seqlab.io>
*/
package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

var cfgFile string
var apiURL string
var debugMode bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "baktarun",
	Short: "Baktarun orchestrates batches of Bakta annotation jobs",
	Long: `A CLI for running genome annotation on many FASTA assemblies through
the Bakta web API: it submits jobs in bounded-concurrency batches, uploads
sequence data, polls until completion, downloads results and writes a run
report.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debugMode {
			// Echo the full command line into the debug output
			fullCmd := "baktarun"
			if cmd.Name() != "baktarun" {
				fullCmd += " " + cmd.Name()
			}
			cmd.Flags().Visit(func(f *pflag.Flag) {
				if f.Name == "debug" {
					return
				}
				if f.Value.Type() == "bool" {
					fullCmd += " --" + f.Name
				} else {
					fullCmd += " --" + f.Name + "=" + f.Value.String()
				}
			})
			if len(args) > 0 {
				fullCmd += " " + strings.Join(args, " ")
			}
			cmd.Printf("[DEBUG] command: %s\n", fullCmd)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.baktarun.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", getEnvOrDefault("BAKTA_API_URL", "https://api.bakta.computational.bio"), "The URL of the Bakta API server")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug output")
}
