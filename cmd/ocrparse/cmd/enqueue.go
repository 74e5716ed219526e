package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/ocrparse/internal/queue"
)

// enqueueCmd represents the enqueue command.
var enqueueCmd = &cobra.Command{
	Use:   "enqueue <document>...",
	Short: "Submit documents to the parse queue",
	Long: `Submit one parse task per document to the redis queue. The worker must
be able to read the documents at the same paths.

Examples:
  ocrparse enqueue invoice.pdf receipt.jpg
  ocrparse enqueue --fields invoice.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.Flags().Bool("fields", false, "submit field-only parse tasks")
	enqueueCmd.Flags().String("mime-type", "", "document MIME type (detected per file when empty)")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	fieldsOnly, _ := cmd.Flags().GetBool("fields")
	mimeType, _ := cmd.Flags().GetString("mime-type")

	client := queue.NewClient(cfg.Queue)
	defer func() { _ = client.Close() }()

	green := color.New(color.FgGreen)
	for _, path := range args {
		req, err := buildRequest(path, mimeType, "")
		if err != nil {
			return err
		}

		enqueue := client.EnqueueParse
		if fieldsOnly {
			enqueue = client.EnqueueParseFields
		}
		info, err := enqueue(cmd.Context(), req)
		if err != nil {
			return err
		}
		_, _ = green.Fprint(cmd.OutOrStdout(), "enqueued ")
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (queue %s, id %s)\n", info.Type, path, info.Queue, info.ID)
	}
	return nil
}
