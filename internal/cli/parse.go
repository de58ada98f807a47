package cli

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var parseJSON bool

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a single resume and print the model output",
	Long: `Copy a resume into the inputs directory, run it through the pipeline and
print the model output. The output is also saved as <name>.json in the
outputs directory.

PDF, DOCX and TXT files are accepted.

Example:
  resume-parser parse ~/Downloads/jane_doe.pdf
  resume-parser parse cv.docx --json`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process every input that has no saved output yet",
	Args:  cobra.NoArgs,
	RunE:  runProcess,
}

func init() {
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(processCmd)
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "Print the upload response object instead of the raw model output")
}

func runParse(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.agent.ProcessLocalFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if parseJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result.ToUploadResponse())
	}

	fmt.Fprintln(out, result.Response)
	return nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	a.agent.SetProgressCallback(func(current, total int, message string) {
		a.logger.WithFields(logrus.Fields{
			"current": current,
			"total":   total,
		}).Info(message)
	})

	resp, err := a.agent.ProcessInputs(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, item := range resp.Items {
		if item.Error != "" {
			fmt.Fprintf(out, "FAIL %s: %s\n", item.FileName, item.Error)
		} else {
			fmt.Fprintf(out, "OK   %s\n", item.FileName)
		}
	}
	fmt.Fprintf(out, "Processed %d, failed %d\n", resp.Processed, resp.Failed)
	return nil
}
