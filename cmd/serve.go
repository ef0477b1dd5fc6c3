package cmd

import (
	"beatsketch/internal/audio"
	"beatsketch/internal/metrics"
	"beatsketch/internal/server"
	"beatsketch/internal/transport"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *options) *cobra.Command {
	var (
		addr     string
		noRemote bool
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if addr == "" {
				addr = cfg.Server.Address
			}

			c, err := newClassifier(cfg, noRemote)
			if err != nil {
				return err
			}

			hub := transport.NewWebSocketHub()
			t, err := newTransport(cfg, hub)
			if err != nil {
				hub.Close()
				return err
			}
			defer t.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m := metrics.New(reg)

			a, err := newAnalyzer(cfg, c, t, m)
			if err != nil {
				return err
			}

			srv := server.New(a, server.Options{
				MaxBytes:          cfg.Import.MaxBytes,
				AllowedMIMETypes:  cfg.Import.AllowedMIMETypes,
				RequestsPerSecond: cfg.Server.RequestsPerSecond,
				Burst:             cfg.Server.Burst,
				Progress:          hub,
				Metrics:           m,
				Gatherer:          reg,
				Fetcher:           &audio.Fetcher{MaxBytes: cfg.Import.MaxBytes, Timeout: cfg.Import.FetchTimeout},
			})
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	serveCmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address. Default is server.address from the configuration")
	serveCmd.Flags().BoolVar(&noRemote, "no-remote", false, "Classify with the local heuristic only")

	return serveCmd
}
