package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/ocrparse/internal/config"
	"github.com/MeKo-Tech/ocrparse/internal/queue"
)

// parseCmd represents the parse command.
var parseCmd = &cobra.Command{
	Use:   "parse <document>",
	Short: "Parse a PDF or image into an archive and plain text",
	Long: `Run recognition on a PDF or image, keep the searchable PDF archive and
print the document's text.

Examples:
  ocrparse parse invoice.pdf
  ocrparse parse scan.png --format json --output scan.json
  ocrparse parse invoice.pdf --mode force --archive-dir ./archive`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
	addDocumentFlags(parseCmd)
	parseCmd.Flags().StringP("format", "f", "text", "output format (text, json)")
	parseCmd.Flags().StringP("output", "o", "", "write the result to a file instead of stdout")
}

// addDocumentFlags registers the flags shared by parse and fields.
func addDocumentFlags(cmd *cobra.Command) {
	cmd.Flags().String("mime-type", "", "document MIME type (detected when empty)")
	cmd.Flags().String("file-name", "", "file name reported to the OCR service (default is the base name)")
	cmd.Flags().String("mode", "", "OCR mode override (skip, skip_noarchive, redo, force)")
	cmd.Flags().String("archive-dir", "", "directory for retained archives")
	cmd.Flags().Bool("keep-working-dir", false, "keep the per-parse working directory")
}

// applyDocumentFlags copies changed document flags onto cfg.
func applyDocumentFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("mode") {
		cfg.OCR.Mode, _ = cmd.Flags().GetString("mode")
	}
	if cmd.Flags().Changed("archive-dir") {
		cfg.Parser.ArchiveDir, _ = cmd.Flags().GetString("archive-dir")
	}
	if cmd.Flags().Changed("keep-working-dir") {
		cfg.Parser.KeepWorkingDir, _ = cmd.Flags().GetBool("keep-working-dir")
	}
	return cfg.Validate()
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if err := applyDocumentFlags(cmd, cfg); err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format: %s (must be text or json)", format)
	}
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

	out, err := p.Parse(ctx, req)
	if err != nil {
		printFailure(cmd.ErrOrStderr(), args[0], err)
		return err
	}

	return writeOutput(cmd, func(w io.Writer) error {
		if format == "json" {
			return writeJSON(w, queue.Result{Text: out.Text, ArchivePath: out.ArchivePath, Extraction: out.Extraction})
		}
		_, err := fmt.Fprintln(w, out.Text)
		return err
	})
}

// writeOutput sends the result to --output or stdout.
func writeOutput(cmd *cobra.Command, write func(io.Writer) error) error {
	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		return write(cmd.OutOrStdout())
	}

	f, err := os.Create(path) //nolint:gosec // G304: output path given on the command line
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
