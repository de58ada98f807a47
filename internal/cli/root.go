package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "resume-parser",
	Short: "Turn uploaded resumes into structured JSON with Gemini",
	Long: `resume-parser extracts the text of a resume, asks a Gemini model to
structure it as JSON and saves the model output next to the upload.

Run "resume-parser serve" to start the HTTP API or "resume-parser parse <file>"
to process a single file from the command line.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
