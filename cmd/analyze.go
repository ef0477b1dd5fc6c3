package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"beatsketch/internal/analysis"
	"beatsketch/internal/audio"
	"beatsketch/internal/beat"
	"beatsketch/internal/config"
	applog "beatsketch/internal/log"
	"beatsketch/internal/transport"
	"beatsketch/internal/tui"

	"github.com/spf13/cobra"
)

// Output formats for notes.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

func checkFormat(format string) error {
	switch format {
	case FormatJSON, FormatCSV:
		return nil
	default:
		return fmt.Errorf("unknown format %q (want %s or %s)", format, FormatJSON, FormatCSV)
	}
}

func newAnalyzeCommand(opts *options) *cobra.Command {
	var (
		format   string
		output   string
		summary  bool
		trace    bool
		noRemote bool
		useTUI   bool
		dump     string
	)

	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.wav|url>",
		Short: "Detect and classify the drum hits in a WAV file",
		Long: "Detect and classify the drum hits in a WAV file or http(s) URL and\n" +
			"write them as notes. Interrupting a run writes the notes finished so far.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			cfg := opts.cfg
			ctx := cmd.Context()

			buf, err := loadAudio(ctx, cfg, args[0])
			if err != nil {
				return err
			}
			if dump != "" {
				mono := audio.NewMono(buf.SampleRate, buf.Channel(0))
				if err := audio.WriteFile(dump, mono, 16); err != nil {
					return fmt.Errorf("failed to write %s: %w", dump, err)
				}
				applog.Infof("Analyze: Wrote channel 0 (%.2fs at %d Hz) to %s", mono.Duration(), mono.SampleRate, dump)
			}
			c, err := newClassifier(cfg, noRemote)
			if err != nil {
				return err
			}

			run := func(ctx context.Context, extra ...transport.Transport) (*analysis.Result, error) {
				t, err := newTransport(cfg, extra...)
				if err != nil {
					return nil, err
				}
				defer t.Close()

				a, err := newAnalyzer(cfg, c, t, nil)
				if err != nil {
					return nil, err
				}
				return a.Analyze(ctx, buf)
			}

			var res *analysis.Result
			if useTUI {
				res, err = tui.RunProgress(ctx, args[0], func(ctx context.Context, t transport.Transport) (*analysis.Result, error) {
					return run(ctx, t)
				})
			} else {
				res, err = run(ctx)
			}

			interrupted := errors.Is(err, context.Canceled)
			if err != nil && (!interrupted || res == nil) {
				return err
			}
			if interrupted {
				applog.Warnf("Analyze: Interrupted, writing %d finished notes", len(res.Notes))
			}

			if err := writeNotes(cmd.OutOrStdout(), output, format, res.Notes); err != nil {
				return err
			}
			if trace {
				enc := json.NewEncoder(cmd.ErrOrStderr())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res.Trace); err != nil {
					return err
				}
			}
			if summary {
				fmt.Fprint(cmd.ErrOrStderr(), tui.RenderSummary(res.Summary))
			}
			if interrupted {
				return fmt.Errorf("analysis interrupted after %d notes: %w", len(res.Notes), err)
			}
			return nil
		},
	}

	analyzeCmd.Flags().StringVarP(&format, "format", "f", FormatJSON, "Output format (json, csv)")
	analyzeCmd.Flags().StringVarP(&output, "output", "o", "", "Output file. Default is stdout")
	analyzeCmd.Flags().BoolVar(&summary, "summary", false, "Print the run summary to stderr")
	analyzeCmd.Flags().BoolVar(&trace, "trace", false, "Print per-onset features and timings to stderr as JSON")
	analyzeCmd.Flags().BoolVar(&noRemote, "no-remote", false, "Classify with the local heuristic only")
	analyzeCmd.Flags().BoolVar(&useTUI, "tui", false, "Follow the run in a terminal UI")
	analyzeCmd.Flags().StringVar(&dump, "dump", "", "Write the decoded channel 0 as 16-bit WAV to this file")

	return analyzeCmd
}

// loadAudio decodes a local WAV file or downloads one from an http(s) URL.
func loadAudio(ctx context.Context, cfg *config.Config, source string) (*audio.Buffer, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		f := &audio.Fetcher{MaxBytes: cfg.Import.MaxBytes, Timeout: cfg.Import.FetchTimeout}
		return f.Fetch(ctx, source)
	}
	return audio.Open(source, cfg.Import.MaxBytes)
}

// writeNotes encodes notes in format and writes them to path, or to w when
// path is empty.
func writeNotes(w io.Writer, path, format string, notes []beat.Note) error {
	var data []byte
	switch format {
	case FormatCSV:
		data = []byte(beat.ExportCSV(notes) + "\n")
	default:
		b, err := beat.ExportJSON(notes)
		if err != nil {
			return err
		}
		data = append(b, '\n')
	}

	if path == "" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write notes: %w", err)
	}
	applog.Infof("Notes: Wrote %d notes to %s", len(notes), path)
	return nil
}
