package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
	"tangled.org/atscan.net/martifact/artifact"
	"tangled.org/atscan.net/martifact/internal/config"
	"tangled.org/atscan.net/martifact/internal/logging"
	"tangled.org/atscan.net/martifact/internal/source"
)

// environment is what every command needs: merged config, a logger and the
// decoder settings wired to that logger
type environment struct {
	cfg    *config.Config
	log    *zap.Logger
	decode *artifact.Config
	quiet  bool
}

func setup(cmd *cobra.Command) (*environment, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	quiet, _ := cmd.Flags().GetBool("quiet")

	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if quiet {
		level = "error"
	}
	logger, err := logging.NewLogger(level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	if cfg.File != "" {
		logger.Debug("using config file", zap.String("path", cfg.File))
	}

	decode, err := cfg.DecodeConfig()
	if err != nil {
		return nil, err
	}
	decode.Observer = logging.NewZapObserver(logger)

	return &environment{cfg: cfg, log: logger, decode: decode, quiet: quiet}, nil
}

func (e *environment) close() {
	_ = e.log.Sync()
}

// open opens an artifact source using the S3 settings from config
func (e *environment) open(ctx context.Context, cmd *cobra.Command, location string) (io.ReadCloser, error) {
	return source.Open(ctx, location, source.Options{
		Stdin: cmd.InOrStdin(),
		S3: source.S3Options{
			Endpoint:        e.cfg.S3.Endpoint,
			Region:          e.cfg.S3.Region,
			AccessKeyID:     e.cfg.S3.AccessKeyID,
			SecretAccessKey: e.cfg.S3.SecretAccessKey,
		},
	})
}

// isTerminal reports whether stderr is an interactive terminal
func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// commandLogger adapts to types.Logger
type commandLogger struct {
	w     io.Writer
	quiet bool
}

func (l *commandLogger) Printf(format string, v ...interface{}) {
	if !l.quiet {
		fmt.Fprintf(l.w, format+"\n", v...)
	}
}

func (l *commandLogger) Println(v ...interface{}) {
	if !l.quiet {
		fmt.Fprintln(l.w, v...)
	}
}
