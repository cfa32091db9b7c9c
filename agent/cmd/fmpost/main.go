package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rupliteflo/fmpost/agent/internal/config"
	"github.com/rupliteflo/fmpost/agent/internal/metrics"
	"github.com/rupliteflo/fmpost/agent/internal/notify"
	"github.com/rupliteflo/fmpost/agent/internal/submit"
)

// exitError carries the process status out of RunE.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	err := newRootCmd().Execute()
	var ee exitError
	switch {
	case err == nil:
		os.Exit(0)
	case errors.As(err, &ee):
		os.Exit(ee.code)
	default:
		os.Exit(1)
	}
}

type options struct {
	jsonFile    string
	envFile     string
	wait        time.Duration
	metricsFile string
	logFormat   string
	logLevel    string
	runID       string
}

func newRootCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:           "fmpost",
		Short:         "Post a JSON payload to the FM REST endpoint with retries",
		Long:          "fmpost submits one JSON file to the endpoint named in the posting properties, authenticating with an OAuth bearer token when available and falling back to basic credentials.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), o.logFormat, o.logLevel)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return exitError{code: 1}
			}
			o.runID = uuid.NewString()
			slog.SetDefault(logger.With("run_id", o.runID))

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			res := run(ctx, o)
			if code := res.ExitCode(); code != 0 {
				return exitError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&o.jsonFile, "jsonfile", "j", "", "JSON payload file to post")
	cmd.Flags().StringVarP(&o.envFile, "envfile", "e", "", "settings file (key=value or YAML)")
	cmd.Flags().DurationVar(&o.wait, "wait", 0, "wait up to this long for the JSON file to appear")
	cmd.Flags().StringVar(&o.metricsFile, "metrics-file", "", "write a Prometheus textfile with run metrics")
	cmd.Flags().StringVar(&o.logFormat, "log-format", "text", "log format: text or json")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	_ = cmd.MarkFlagRequired("jsonfile")
	_ = cmd.MarkFlagRequired("envfile")
	return cmd
}

func run(ctx context.Context, o options) submit.Result {
	slog.Info("fmpost starting", "jsonfile", o.jsonFile, "envfile", o.envFile)

	started := time.Now()
	rec := metrics.New()
	settings, res, err := submitOnce(ctx, o, rec)
	rec.Finish(res == submit.Success)

	if o.metricsFile != "" {
		if err := rec.WriteFile(o.metricsFile); err != nil {
			slog.Warn("failed to write metrics file", "path", o.metricsFile, "err", err)
		}
	}
	if res != submit.Success && settings != nil && settings.NotifyURL != "" {
		report := notify.Report{
			RunID:    o.runID,
			JSONFile: o.jsonFile,
			Result:   res.String(),
			Duration: time.Since(started),
		}
		report.Host, _ = os.Hostname()
		if err != nil {
			report.Error = err.Error()
		}
		// ctx may already be cancelled; the report still goes out.
		nctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = notify.New(settings.NotifyType, settings.NotifyURL).Notify(nctx, report)
	}
	slog.Info("fmpost finished", "result", res.String())
	return res
}

func submitOnce(ctx context.Context, o options, rec *metrics.Recorder) (*config.Settings, submit.Result, error) {
	settings, err := config.LoadSettings(o.envFile)
	if err != nil {
		slog.Error("failed to load settings", "path", o.envFile, "err", err)
		return nil, submit.Failure, err
	}
	slog.Info("settings loaded",
		"posting_file", settings.PostingFile,
		"retry_times", settings.RetryTimes,
		"retry_sleep", settings.RetrySleep,
		"retry_factor", settings.RetryFactor,
		"connect_timeout", settings.ConnectTimeout,
		"max_timeout", settings.MaxTimeout,
	)

	s := submit.New(*settings, submit.WithMetrics(rec), submit.WithPayloadWait(o.wait))
	res, err := s.Submit(ctx, o.jsonFile)
	if err != nil {
		slog.Error("submission failed", "err", err)
	}
	return settings, res, err
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", format)
	}
}
