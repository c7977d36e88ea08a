package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"tangled.org/atscan.net/martifact/internal/catalog"
	"tangled.org/atscan.net/martifact/internal/report"
)

func NewVerifyCommand() *cobra.Command {
	var (
		verbose     bool
		catalogPath string
	)

	cmd := &cobra.Command{
		Use:   "verify <source>...",
		Short: "Verify artifacts against their manifests",
		Long: `Verify artifacts against their manifests

Each source is decoded completely and every payload digest is compared with
the manifest. The command fails if any artifact does not decode or any
payload does not verify. With --catalog, results are appended to a JSON
catalog file.`,

		Example: `  martifact verify release.mender
  martifact verify a.mender b.mender --catalog catalog.json
  martifact verify https://example.com/release.mender --scope content`,

		Args: cobra.MinimumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			var cat *catalog.Catalog
			if catalogPath != "" {
				if cat, err = catalog.LoadOrCreate(catalogPath); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, src := range args {
				rep := verifyOne(cmd.Context(), env, cmd, src)
				printVerification(out, rep, verbose)
				if !rep.Valid {
					failed++
				}
				if cat != nil {
					cat.Add(catalog.NewEntry(rep))
				}
			}

			if cat != nil {
				if err := cat.Save(catalogPath); err != nil {
					return err
				}
				env.log.Info("catalog saved", zap.String("path", catalogPath), zap.Int("entries", cat.Count()))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d artifacts failed verification", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show digests")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "record results in this catalog file")

	return cmd
}

func verifyOne(ctx context.Context, env *environment, cmd *cobra.Command, src string) *report.Report {
	r, err := env.open(ctx, cmd, src)
	if err != nil {
		return report.Build(nil, src, err)
	}
	defer r.Close()

	rep, _ := report.Inspect(ctx, r, src, env.decode, report.Options{})
	return rep
}

func printVerification(w io.Writer, rep *report.Report, verbose bool) {
	if rep.Valid {
		fmt.Fprintf(w, "✓ %s", rep.Source)
	} else {
		fmt.Fprintf(w, "✗ %s", rep.Source)
	}
	if rep.ArtifactName != "" {
		fmt.Fprintf(w, " (%s)", rep.ArtifactName)
	}
	fmt.Fprintln(w)

	for _, p := range rep.Payloads {
		mark := "✓"
		if !p.Verified {
			mark = "✗"
		}
		fmt.Fprintf(w, "  %s %04d %-14s %s\n", mark, p.Index, p.Type, p.File)
		if verbose || (!p.Verified && p.Expected != "") {
			fmt.Fprintf(w, "      expected: %s\n", p.Expected)
			if p.Actual != "" {
				fmt.Fprintf(w, "      actual:   %s\n", p.Actual)
			}
		}
	}
	if rep.Error != nil {
		fmt.Fprintf(w, "  Error: %s\n", rep.Error.Message)
	}
}
