package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/ocrparse/internal/parser"
	"github.com/MeKo-Tech/ocrparse/internal/queue"
)

// fieldsCmd represents the fields command.
var fieldsCmd = &cobra.Command{
	Use:   "fields <document>",
	Short: "Resolve the form code and extracted fields of a document",
	Long: `Run recognition with field extraction only and print the matched form
code and its fields as JSON. No text is extracted.`,
	Args: cobra.ExactArgs(1),
	RunE: runFields,
}

func init() {
	rootCmd.AddCommand(fieldsCmd)
	addDocumentFlags(fieldsCmd)
	fieldsCmd.Flags().StringP("output", "o", "", "write the result to a file instead of stdout")
}

func runFields(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if err := applyDocumentFlags(cmd, cfg); err != nil {
		return err
	}
	cfg.API.EnableFieldExtraction = true

	mimeType, _ := cmd.Flags().GetString("mime-type")
	fileName, _ := cmd.Flags().GetString("file-name")
	req, err := buildRequest(args[0], mimeType, fileName)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p, closeParser, err := newParser(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer closeParser()

	out, err := p.ParseFields(ctx, req)
	if err != nil {
		printFailure(cmd.ErrOrStderr(), args[0], err)
		return err
	}
	if out.Extraction.FormCode == "" {
		_, _ = color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "no form code matched %s\n", args[0])
	}

	return writeOutput(cmd, func(w io.Writer) error {
		return writeJSON(w, queue.Result{ArchivePath: out.ArchivePath, Extraction: out.Extraction})
	})
}

// printFailure reports a failed parse, naming the error class when known.
func printFailure(w io.Writer, doc string, err error) {
	red := color.New(color.FgRed, color.Bold)
	var pe *parser.ParseError
	if errors.As(err, &pe) && pe.Class != "" {
		_, _ = red.Fprintf(w, "parse of %s failed (%s): ", doc, pe.Class)
		_, _ = fmt.Fprintln(w, pe.Message)
		return
	}
	_, _ = red.Fprintf(w, "parse of %s failed: ", doc)
	_, _ = fmt.Fprintln(w, err)
}
