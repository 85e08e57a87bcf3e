package sgdma

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"time"

	graphite "github.com/cyberdelia/go-metrics-graphite"
	mp "github.com/nbrownus/go-metrics-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/slackhq/sgdma/config"
)

// statsRunner exports metrics until ctx is done. Export failures are logged,
// they never decide the outcome of a run.
type statsRunner func(ctx context.Context)

// exporter is one stats backend. serve, when set, runs for the life of the
// runner and only returns on failure.
type exporter struct {
	flush func() error
	serve func() error
	stop  func() error
}

// startStats reads the stats config and returns the exporter to run alongside
// the tests, nil if stats are disabled.
func startStats(l *logrus.Logger, c *config.C, buildVersion string, configTest bool) (statsRunner, error) {
	mType := c.GetString("stats.type", "")
	if mType == "" || mType == "none" {
		return nil, nil
	}

	interval := c.GetDuration("stats.interval", 0)
	if interval == 0 {
		return nil, fmt.Errorf("stats.interval was an invalid duration: %s", c.GetString("stats.interval", ""))
	}

	var exp exporter
	var err error
	switch mType {
	case "graphite":
		exp, err = startGraphiteStats(l, interval, c)
	case "prometheus":
		exp, err = startPrometheusStats(l, interval, c, buildVersion)
	default:
		return nil, fmt.Errorf("stats.type was not understood: %s", mType)
	}
	if err != nil {
		return nil, err
	}

	if configTest {
		return nil, nil
	}

	metrics.RegisterRuntimeMemStats(metrics.DefaultRegistry)
	return func(ctx context.Context) {
		runStats(ctx, l.WithField("stats", mType), interval, exp)
	}, nil
}

func runStats(ctx context.Context, l *logrus.Entry, interval time.Duration, exp exporter) {
	var serveErr chan error
	if exp.serve != nil {
		serveErr = make(chan error, 1)
		go func() { serveErr <- exp.serve() }()
	}

	flush := func() {
		metrics.CaptureRuntimeMemStatsOnce(metrics.DefaultRegistry)
		if err := exp.flush(); err != nil {
			l.WithError(err).Warn("Failed to flush stats")
		}
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			// a short run still reports its final counts
			flush()
			if exp.stop != nil {
				if err := exp.stop(); err != nil {
					l.WithError(err).Warn("Failed to stop stats exporter")
				}
			}
			return
		case err := <-serveErr:
			if err != nil {
				l.WithError(err).Error("Stats listener stopped")
			}
			serveErr = nil
		case <-t.C:
			flush()
		}
	}
}

func startGraphiteStats(l *logrus.Logger, i time.Duration, c *config.C) (exporter, error) {
	proto := c.GetString("stats.protocol", "tcp")
	host := c.GetString("stats.host", "")
	if host == "" {
		return exporter{}, errors.New("stats.host can not be empty")
	}

	prefix := c.GetString("stats.prefix", "sgdma")
	addr, err := net.ResolveTCPAddr(proto, host)
	if err != nil {
		return exporter{}, fmt.Errorf("error while setting up graphite sink: %s", err)
	}

	gc := graphite.Config{
		Addr:          addr,
		Registry:      metrics.DefaultRegistry,
		FlushInterval: i,
		DurationUnit:  time.Nanosecond,
		Prefix:        prefix,
		Percentiles:   []float64{0.5, 0.75, 0.95, 0.99, 0.999},
	}

	l.Infof("Starting graphite. Interval: %s, prefix: %s, addr: %s", i, prefix, addr)
	return exporter{flush: func() error { return graphite.Once(gc) }}, nil
}

func startPrometheusStats(l *logrus.Logger, i time.Duration, c *config.C, buildVersion string) (exporter, error) {
	namespace := c.GetString("stats.namespace", "")
	subsystem := c.GetString("stats.subsystem", "")

	listen := c.GetString("stats.listen", "")
	if listen == "" {
		return exporter{}, fmt.Errorf("stats.listen should not be empty")
	}

	path := c.GetString("stats.path", "")
	if path == "" {
		return exporter{}, fmt.Errorf("stats.path should not be empty")
	}

	pr := prometheus.NewRegistry()
	pClient := mp.NewPrometheusProvider(metrics.DefaultRegistry, namespace, subsystem, pr, i)

	// Export our version information as labels on a static gauge
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "info",
		Help:      "Version information for the sgdma binary",
		ConstLabels: prometheus.Labels{
			"version":   buildVersion,
			"goversion": runtime.Version(),
		},
	})
	pr.MustRegister(g)
	g.Set(1)

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(pr, promhttp.HandlerOpts{ErrorLog: l}))
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	return exporter{
		flush: pClient.UpdatePrometheusMetricsOnce,
		serve: func() error {
			l.Infof("Prometheus stats listening on %s at %s", listen, path)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("prometheus listener: %w", err)
			}
			return nil
		},
		stop: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}, nil
}
