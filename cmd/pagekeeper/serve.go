package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/pagekeeper/internal/config"
	"github.com/vango-dev/pagekeeper/internal/errors"
	"github.com/vango-dev/pagekeeper/pkg/middleware"
	"github.com/vango-dev/pagekeeper/pkg/pages"
	"github.com/vango-dev/pagekeeper/pkg/server"
	"github.com/vango-dev/pagekeeper/pkg/session"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the page registry API server",
		Long: `Start the HTTP API with one page registry per client session.

Configuration is read from --config, or from the nearest pagekeeper.json,
.toml or .yaml in the working directory or its parents. Without one the
defaults are used.

Examples:
  pagekeeper serve
  pagekeeper serve --addr 0.0.0.0:9000
  pagekeeper serve --config deploy/pagekeeper.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			srv, err := buildServer(cfg, addr, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "pagekeeper %s listening on %s", version, srv.Config().Address)
			return srv.Run()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file (default: discovered from the working directory)")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on, overriding server.host and server.port")

	return cmd
}

// loadConfig reads path, or discovers a configuration from the working
// directory and falls back to defaults when none exists.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.LoadFromWorkingDir()
		var ke *errors.KeeperError
		if stderrors.As(err, &ke) && ke.Code == "C121" {
			cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildServer wires configuration into a ready-to-run server.
func buildServer(cfg *config.Config, addr string, logOut io.Writer) (*server.Server, error) {
	logger, err := newLogger(logOut, cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	for _, key := range cfg.Unknown() {
		logger.Warn("unknown configuration key", "key", key, "file", cfg.Path())
	}

	template, err := cfg.PagesConfig(logger)
	if err != nil {
		return nil, err
	}

	var (
		metrics  *middleware.Metrics
		gatherer *prometheus.Registry
	)
	if cfg.Metrics.Enabled {
		gatherer = prometheus.NewRegistry()
		gatherer.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = middleware.NewMetrics(
			middleware.WithNamespace(cfg.Metrics.Namespace),
			middleware.WithRegistry(gatherer),
		)
		template.Observers = append(template.Observers, metrics)
	}

	mc, err := cfg.ManagerConfig(template)
	if err != nil {
		return nil, err
	}
	manager := session.NewManager(mc, logger)

	sc := server.DefaultServerConfig()
	sc.Address = cfg.Address()
	if addr != "" {
		sc.Address = addr
	}
	sc.ReadTimeout, sc.WriteTimeout, sc.ShutdownTimeout = cfg.ServerTimeouts()
	sc.MetricsPath = cfg.Metrics.Path
	if len(cfg.Server.AllowedOrigins) > 0 {
		sc.CheckOrigin = server.AllowOrigins(cfg.Server.AllowedOrigins...)
	}

	srv := server.New(sc, manager)
	srv.SetLogger(logger)
	if metrics != nil {
		srv.SetMetrics(metrics, gatherer)
	}
	if cfg.Tracing.Enabled {
		srv.Use(middleware.OpenTelemetry(middleware.WithTracerName(cfg.Tracing.TracerName)))
	}

	logger.Info("server configured",
		"address", sc.Address,
		"key_policy", template.Policy.Name(),
		"max_sessions", mc.MaxSessions,
		"metrics", cfg.Metrics.Enabled,
		"tracing", cfg.Tracing.Enabled)
	return srv, nil
}

// printState writes a registry state as an indented table.
func printState(w io.Writer, st pages.State) {
	fmt.Fprintf(w, "active: %s\n", orNone(st.Active))
	fmt.Fprintln(w, "pages:")
	if len(st.Pages) == 0 {
		info(w, "(none)")
	}
	for _, p := range st.Pages {
		marker := " "
		if p.FullPath == st.Active {
			marker = "*"
		}
		fmt.Fprintf(w, "  %s %-30s key=%s mount=%s\n", marker, p.FullPath, p.CacheKey, p.MountKey)
	}
	fmt.Fprintf(w, "membership: %v\n", st.Membership)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
