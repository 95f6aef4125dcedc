// © 2025 Platform Engineering Labs Inc.
//
// SPDX-License-Identifier: FSL-1.1-ALv2

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/deploy"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/provisioning"
	"github.com/platform-engineering-labs/formae-plugin-securitylake/pkg/stack"
)

const metricsNamespace = "lakectl"

func newApplyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Converge the stack",
		Long: `Create or reconfigure the data lake and wait until it is ready, then
attach the log sources in order and register the subscribers.

Interrupting apply stops waiting; it never deletes anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := stack.Load(opts.StackPath)
			if err != nil {
				return err
			}
			d, stop, err := opts.deployer(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer stop()

			report, err := d.Apply(cmd.Context(), s)
			printReport(cmd.OutOrStdout(), report)
			return err
		},
	}
}

// deployer builds a deployer for s and starts the metrics endpoint when
// requested. stop shuts the endpoint down.
func (o *RootOptions) deployer(ctx context.Context, s *stack.Stack) (*deploy.Deployer, func(), error) {
	c, err := o.target(ctx, s)
	if err != nil {
		return nil, nil, err
	}

	metrics := provisioning.NewMetrics(metricsNamespace)
	opts := provisioning.OptionsFromSettings(c.Config.Settings)
	opts.Metrics = metrics

	stop := func() {}
	if o.MetricsAddr != "" {
		stop = serveMetrics(ctx, o.MetricsAddr, promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
	return deploy.New(c.ControlPlane, c.Config, opts), stop, nil
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger := log.Ctx(ctx)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

func printReport(w io.Writer, report deploy.Report) {
	lake := report.Lake
	fmt.Fprintf(w, "Run %s\n", report.RunID)
	fmt.Fprintf(w, "Data lake: %s after %d checks (%s)\n", lake.Status, lake.Polls, lake.Elapsed.Round(time.Second))
	if arn := lake.Attributes.Reference(); arn != "" {
		fmt.Fprintf(w, "  arn:           %s\n", arn)
		fmt.Fprintf(w, "  bucket:        %s\n", lake.Attributes[provisioning.AttrS3BucketArn])
		fmt.Fprintf(w, "  glue database: %s\n", lake.Attributes[provisioning.AttrGlueDatabase])
	}
	if lake.Reason != "" {
		fmt.Fprintf(w, "  reason:        %s\n", lake.Reason)
	}

	if len(report.Sources.Items) > 0 {
		fmt.Fprintln(w, "Log sources:")
		for _, item := range report.Sources.Items {
			mark := "✓"
			if item.Err != nil {
				mark = "✗"
			}
			fmt.Fprintf(w, "  %s %s %s\n", mark, item.Identity, item.Outcome)
		}
	}

	if len(report.Subscribers) > 0 {
		fmt.Fprintln(w, "Subscribers:")
		for _, sub := range report.Subscribers {
			switch {
			case sub.Err != nil:
				fmt.Fprintf(w, "  ✗ %s: %v\n", sub.Name, sub.Err)
			case sub.Existing:
				fmt.Fprintf(w, "  ✓ %s already registered (%s)\n", sub.Name, sub.Registration.SubscriberID)
			default:
				fmt.Fprintf(w, "  ✓ %s %s\n", sub.Name, sub.Registration.ShareReference)
			}
		}
	}
}
