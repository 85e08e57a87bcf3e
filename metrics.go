package sgdma

import (
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

type engineMetrics struct {
	passed   metrics.Counter
	failed   metrics.Counter
	bytes    metrics.Counter
	resets   metrics.Counter
	duration metrics.Timer
}

func newEngineMetrics() *engineMetrics {
	return &engineMetrics{
		passed:   metrics.GetOrRegisterCounter("transfers.passed", nil),
		failed:   metrics.GetOrRegisterCounter("transfers.failed", nil),
		bytes:    metrics.GetOrRegisterCounter("transfers.bytes", nil),
		resets:   metrics.GetOrRegisterCounter("transfers.resets", nil),
		duration: metrics.GetOrRegisterTimer("transfers.duration", nil),
	}
}

func (m *engineMetrics) record(err error, n uint64, d time.Duration) {
	m.duration.Update(d)
	if err != nil {
		m.failed.Inc(1)
		return
	}
	m.passed.Inc(1)
	m.bytes.Inc(int64(n))
}

func (m *engineMetrics) fields() logrus.Fields {
	return logrus.Fields{
		"passed":     m.passed.Count(),
		"failed":     m.failed.Count(),
		"bytes":      m.bytes.Count(),
		"resets":     m.resets.Count(),
		"meanTimeUs": time.Duration(m.duration.Mean()).Microseconds(),
	}
}
