package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"tangled.org/atscan.net/martifact/internal/report"
)

func NewInspectCommand() *cobra.Command {
	var (
		format       string
		skipPayloads bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <source>",
		Short: "Decode an artifact and print a report",
		Long: `Decode an artifact and print a report

The report covers the version, manifest, header-info, every subheader
(provides, depends, meta-data) and the checksum result of every payload.
A checksum mismatch is shown in the report; only a decode error makes the
command fail.`,

		Example: `  # Text report
  martifact inspect release.mender

  # Machine-readable
  martifact inspect release.mender --format json
  martifact inspect s3://firmware/release.mender --format yaml

  # Metadata only, payload data is skipped unread
  martifact inspect release.mender --skip-payloads

  # From stdin
  cat release.mender | martifact inspect -`,

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

			rep, decodeErr := report.Inspect(cmd.Context(), r, args[0], env.decode,
				report.Options{SkipPayloads: skipPayloads})

			if err := report.Encode(cmd.OutOrStdout(), rep, format); err != nil {
				return err
			}
			if decodeErr != nil {
				return fmt.Errorf("decode failed: %w", decodeErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", report.FormatText,
		"output format ("+strings.Join(report.Formats, ", ")+")")
	cmd.Flags().BoolVar(&skipPayloads, "skip-payloads", false, "do not read or verify payload data")

	return cmd
}
