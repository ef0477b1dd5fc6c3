package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"beatsketch/internal/beat"
	applog "beatsketch/internal/log"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newExportCommand(opts *options) *cobra.Command {
	var (
		format string
		output string
	)

	exportCmd := &cobra.Command{
		Use:   "export <notes.json|notes.csv>",
		Short: "Convert notes between JSON and CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			notes, err := readNotes(args[0])
			if err != nil {
				return err
			}
			return writeNotes(cmd.OutOrStdout(), output, format, notes)
		},
	}

	exportCmd.Flags().StringVarP(&format, "format", "f", FormatJSON, "Output format (json, csv)")
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "Output file. Default is stdout")

	return exportCmd
}

// readNotes imports a notes file. The format follows the extension; files
// with any other extension are read as JSON when they start with '[' and
// as CSV otherwise.
func readNotes(path string) ([]beat.Note, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	applog.Debugf("Export: Read %s (%s)", path, humanize.Bytes(uint64(len(data))))

	var notes []beat.Note
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".json":
		notes, err = beat.ImportJSON(data)
	case ext == ".csv":
		notes, err = beat.ImportCSV(string(data))
	case bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")):
		notes, err = beat.ImportJSON(data)
	default:
		notes, err = beat.ImportCSV(string(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return notes, nil
}
