package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"tangled.org/atscan.net/martifact/cmd/martifact/ui"
	"tangled.org/atscan.net/martifact/internal/extract"
	"tangled.org/atscan.net/martifact/internal/report"
)

func NewExtractCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "extract <source>",
		Short: "Write verified payloads to a directory",
		Long: `Write verified payloads to a directory

Payload N is written to <output>/NNNN/<file>. Data is streamed to a temp
file and only renamed into place once its digest matches the manifest, so
a payload that fails verification leaves nothing behind. The remaining
payloads are still extracted and the command fails at the end.`,

		Example: `  martifact extract release.mender -o ./out
  martifact extract s3://firmware/release.mender -o ./out --scope content`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			r, err := env.open(cmd.Context(), cmd, args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			logger := &commandLogger{w: cmd.ErrOrStderr(), quiet: env.quiet}
			logger.Printf("Extracting %s to %s", args[0], output)

			var progress *barTracker
			var progressFn extract.ProgressFunc
			if isTerminal() && !env.quiet {
				progress = &barTracker{}
				progressFn = progress.update
			}

			sum, err := extract.Extract(cmd.Context(), r, output, env.decode, progressFn)
			if progress != nil {
				progress.finish()
			}
			if sum != nil {
				printExtracted(cmd.OutOrStdout(), sum)
			}
			if err != nil {
				return fmt.Errorf("decode failed: %w", err)
			}

			env.log.Debug("extraction complete",
				zap.Int("files", len(sum.Files)), zap.Int("failed", len(sum.Failed)))

			if len(sum.Failed) > 0 {
				return fmt.Errorf("%d payloads failed verification", len(sum.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", ".", "output directory")

	return cmd
}

func printExtracted(w io.Writer, sum *extract.Summary) {
	for _, f := range sum.Files {
		fmt.Fprintf(w, "✓ %04d %-14s %10s  %s\n", f.Index, f.Type, report.FormatBytes(f.Size), f.Path)
	}
	for _, err := range sum.Failed {
		fmt.Fprintf(w, "✗ %v\n", err)
	}
}

// barTracker starts a new bar for every payload index
type barTracker struct {
	index int
	bar   *ui.ProgressBar
}

func (b *barTracker) update(index int, written, total int64) {
	if b.bar == nil || b.index != index {
		b.finish()
		b.index = index
		b.bar = ui.NewProgressBar(fmt.Sprintf("%04d", index), total)
	}
	b.bar.Set(written)
}

func (b *barTracker) finish() {
	if b.bar != nil {
		b.bar.Finish()
		b.bar = nil
	}
}
