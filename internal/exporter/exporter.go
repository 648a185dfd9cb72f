package exporter

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/df-mc/atomic"
	"github.com/gofrs/uuid"
	"github.com/haveachin/minestat/internal/config"
	"github.com/haveachin/minestat/pkg/minestat"
	"github.com/prometheus/client_golang/prometheus"
	uberatomic "go.uber.org/atomic"
	"go.uber.org/zap"
)

const namespace = "minestat"

// Prober queries a single server. *minestat.Pinger implements it.
type Prober interface {
	Query(ctx context.Context, address string, port int) (minestat.Result, error)
}

type Target struct {
	Name    string
	Address string
	Port    int
	Prober  Prober
}

// TargetsFromConfig builds one target per configured server, each with its own pinger.
func TargetsFromConfig(cfg config.Config, logger *zap.Logger) ([]Target, error) {
	targets := make([]Target, 0, len(cfg.Targets))
	for _, tCfg := range cfg.Targets {
		p, err := minestat.NewWithConfig(cfg.PingerConfig(tCfg))
		if err != nil {
			return nil, err
		}
		if logger != nil {
			p.Logger = logger
		}

		targets = append(targets, Target{
			Name:    tCfg.Name,
			Address: tCfg.Address,
			Port:    tCfg.Port,
			Prober:  p,
		})
	}
	return targets, nil
}

var (
	upDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "up"),
		"Whether the status query of the target succeeded.",
		[]string{"target"}, nil,
	)
	playersOnlineDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "players", "online"),
		"Number of players online as reported by the target.",
		[]string{"target"}, nil,
	)
	playersMaxDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "players", "max"),
		"Player limit as reported by the target.",
		[]string{"target"}, nil,
	)
	versionInfoDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "version", "info"),
		"Version the target reports, always 1.",
		[]string{"target", "name", "protocol"}, nil,
	)
	latencyDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "latency_seconds"),
		"Ping round trip time to the target.",
		[]string{"target"}, nil,
	)
	queryDurationDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "query", "duration_seconds"),
		"Time the status query of the target took.",
		[]string{"target"}, nil,
	)
)

// Exporter is a prometheus.Collector that queries every target on each scrape.
// No status is kept between scrapes.
type Exporter struct {
	Logger *zap.Logger

	targets       *atomic.Value[[]Target]
	scrapeTimeout *uberatomic.Duration
	queryErrors   *prometheus.CounterVec
}

func New(targets []Target, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Exporter{
		Logger:        logger,
		targets:       atomic.NewValue(targets),
		scrapeTimeout: uberatomic.NewDuration(30 * time.Second),
		queryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_errors_total",
			Help:      "Failed status queries by target, stage and kind.",
		}, []string{"target", "stage", "kind"}),
	}
}

// SetTargets replaces the targets queried by the following scrapes.
func (e *Exporter) SetTargets(targets []Target) {
	e.targets.Store(targets)
}

func (e *Exporter) Targets() []Target {
	return e.targets.Load()
}

// SetScrapeTimeout bounds a whole scrape. Single queries are additionally
// bounded by their pinger's timeout. Zero or less disables the bound.
func (e *Exporter) SetScrapeTimeout(d time.Duration) {
	e.scrapeTimeout.Store(d)
}

func (e *Exporter) ScrapeTimeout() time.Duration {
	return e.scrapeTimeout.Load()
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- upDesc
	ch <- playersOnlineDesc
	ch <- playersMaxDesc
	ch <- versionInfoDesc
	ch <- latencyDesc
	ch <- queryDurationDesc
	e.queryErrors.Describe(ch)
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	ctx := context.Background()
	if d := e.scrapeTimeout.Load(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	var wg sync.WaitGroup
	for _, t := range e.targets.Load() {
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			e.collectTarget(ctx, ch, t)
		}(t)
	}
	wg.Wait()

	e.queryErrors.Collect(ch)
}

func (e *Exporter) collectTarget(ctx context.Context, ch chan<- prometheus.Metric, t Target) {
	probeID, _ := uuid.NewV4()
	logger := e.Logger.With(
		zap.Stringer("probeId", probeID),
		zap.String("target", t.Name),
	)

	start := time.Now()
	res, err := t.Prober.Query(ctx, t.Address, t.Port)
	ch <- prometheus.MustNewConstMetric(queryDurationDesc, prometheus.GaugeValue, time.Since(start).Seconds(), t.Name)

	if err != nil {
		logger.Debug("target query failed", zap.Error(err))
		e.queryErrors.WithLabelValues(t.Name, errorStage(err), ErrorKind(err)).Inc()
		ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, 0, t.Name)
		return
	}
	ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, 1, t.Name)

	if online, max, ok := res.Status.Players(); ok {
		ch <- prometheus.MustNewConstMetric(playersOnlineDesc, prometheus.GaugeValue, float64(online), t.Name)
		ch <- prometheus.MustNewConstMetric(playersMaxDesc, prometheus.GaugeValue, float64(max), t.Name)
	}

	if name, protocol := res.Status.Version(); name != "" {
		ch <- prometheus.MustNewConstMetric(versionInfoDesc, prometheus.GaugeValue, 1, t.Name, name, strconv.Itoa(protocol))
	}

	if res.Latency > 0 {
		ch <- prometheus.MustNewConstMetric(latencyDesc, prometheus.GaugeValue, res.Latency.Seconds(), t.Name)
	}
}

// ErrorKind returns a stable label for the kind of a query error.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, minestat.ErrTimeout):
		return "timeout"
	case errors.Is(err, minestat.ErrUnexpectedPacketID):
		return "unexpected_packet_id"
	case errors.Is(err, minestat.ErrProtocolDecode):
		return "protocol_decode"
	case errors.Is(err, minestat.ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, minestat.ErrConnection):
		return "connection"
	default:
		return "unknown"
	}
}

func errorStage(err error) string {
	var qErr *minestat.QueryError
	if errors.As(err, &qErr) {
		return string(qErr.Stage)
	}
	return "unknown"
}
