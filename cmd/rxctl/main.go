package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"rx-reader/client"
)

var version = "v0.1.0" // overwritten at build time

type rootOptions struct {
	serverURL string
	output    string
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "rxctl",
		Short: "Analyze prescription images from the command line",
		Long: `rxctl talks to an rx-reader server: it uploads prescription photos for
analysis, asks follow-up questions and records feedback on results.`,
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	defaultURL := os.Getenv("RX_SERVER_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVarP(&opts.serverURL, "server", "s", defaultURL, "rx-reader server URL")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "human", "Output format (human, json, yaml)")

	rootCmd.AddCommand(
		newAnalyzeCmd(opts),
		newAskCmd(opts),
		newFeedbackCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rxctl version %s\n", version)
		},
	}
}

func (o *rootOptions) client() (*client.Client, error) {
	return client.New(o.serverURL)
}

func (o *rootOptions) validateOutput() error {
	switch o.output {
	case formatHuman, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want human, json or yaml)", o.output)
	}
}
