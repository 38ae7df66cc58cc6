// Package cli implements the awsmultic command.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/olaaustine/awsmultic"
	"github.com/olaaustine/awsmultic/errors"
	"github.com/olaaustine/awsmultic/internal/logger"
	"github.com/olaaustine/awsmultic/s3types"
)

// Exit codes
const (
	ExitSuccess        = 0
	ExitFailure        = 1
	ExitPartialSuccess = 3
)

// EnvPrefix prefixes every environment variable the command reads.
const EnvPrefix = "AWSMULTIC"

// ClientFactory creates the relocation client from the resolved options.
type ClientFactory func(ctx context.Context, opts ...s3types.Option) (*awsmultic.Client, error)

// ExitError carries the process exit code of a finished run.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewRootCommand returns the awsmultic command. newClient is usually awsmultic.New.
func NewRootCommand(newClient ClientFactory) *cobra.Command {
	var v *viper.Viper

	cmd := &cobra.Command{
		Use:   "awsmultic",
		Short: "Relocate an S3 object into a destination folder",
		Long: `awsmultic moves an object into a folder of the same bucket.

Objects below the size threshold are copied server side. Larger objects, and
objects supplied with --file, are streamed through a checksum-verified
multipart upload. Every flag can also be set through an AWSMULTIC_<FLAG>
environment variable or a YAML file given with --config.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, v, newClient)
		},
	}

	registerFlags(cmd.Flags())
	v = newViper(cmd.Flags())
	return cmd
}

// newViper layers AWSMULTIC_* variables and the config file under flags.
func newViper(flags *pflag.FlagSet) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(flags)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func run(cmd *cobra.Command, v *viper.Viper, newClient ClientFactory) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return &ExitError{Code: ExitFailure, Err: fmt.Errorf("reading config: %w", err)}
		}
	}

	cfg, err := loadConfig(NewFlagLoader(cmd, v))
	if err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}

	log, err := logger.New(cmd.ErrOrStderr(), logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}

	registry := prometheus.NewRegistry()
	opts := append(cfg.Options(log),
		awsmultic.WithProgress(newProgressLogger(log)),
		awsmultic.WithRegisterer(registry),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := newClient(ctx, opts...)
	if err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}
	defer func() {
		_ = client.Close()
	}()

	result := client.Transfer(ctx, cfg.Request())
	report(cmd.OutOrStdout(), result)

	if cfg.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsTextfile, registry); err != nil {
			log.Warn().Err(err).Str("path", cfg.MetricsTextfile).Msg("writing metrics failed")
		}
	}

	// The outcome is already reported; only the code is left to return.
	if code := ExitCode(result); code != ExitSuccess {
		return &ExitError{Code: code}
	}
	return nil
}

// ExitCode maps a transfer outcome onto the process exit code.
func ExitCode(result *s3types.TransferResult) int {
	switch result.Outcome {
	case s3types.OutcomeSuccess:
		return ExitSuccess
	case s3types.OutcomePartialSuccess:
		return ExitPartialSuccess
	default:
		return ExitFailure
	}
}

func report(w io.Writer, result *s3types.TransferResult) {
	switch result.Outcome {
	case s3types.OutcomeSuccess:
		fmt.Fprintf(w, "moved %s to %s (%s, %s)\n",
			humanize.IBytes(uint64(result.Size)), result.Object, result.Strategy, result.Duration.Round(time.Millisecond))
	case s3types.OutcomePartialSuccess:
		fmt.Fprintf(w, "copied %s to %s, but %s could not be removed: %v\n",
			humanize.IBytes(uint64(result.Size)), result.Object, result.DuplicateAt, result.Err)
	default:
		fmt.Fprintf(w, "transfer failed [%s]: %v\n", errors.KindOf(result.Err), result.Err)
	}
}

// Execute runs cmd and returns the process exit code.
func Execute(ctx context.Context, cmd *cobra.Command) int {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "error:", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
	return ExitFailure
}
