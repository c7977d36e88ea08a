package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the martifact command tree
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "martifact",
		Short: "Inspect, verify and extract mender artifacts",
		Long: `martifact decodes mender artifacts in a single streaming pass.

Every artifact is checked in order: version, manifest, header and then each
payload, whose digest is compared with the manifest as it is read. Sources
can be local files, "-" for stdin, http(s) URLs or s3://bucket/key.`,
		Version:       GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./martifact.yaml or $HOME/.martifact/martifact.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console or json)")
	flags.String("scope", "compressed", "checksum scope (compressed or content)")
	flags.BoolP("quiet", "q", false, "only log errors")

	cmd.AddCommand(
		NewInspectCommand(),
		NewVerifyCommand(),
		NewExtractCommand(),
		NewServeCommand(),
		NewVersionCommand(),
	)

	return cmd
}
