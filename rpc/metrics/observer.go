package metrics

import (
	"fmt"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"io"
	"strings"
	"time"
)

var Logger = logger.GetLogger("metrics")

const prefix = "opensearch_ext_transport"

// allKinds lists every event kind so the counters exist from the start
var allKinds = []common.EventKind{
	common.EventConnect,
	common.EventDisconnect,
	common.EventDecodeError,
	common.EventDispatchError,
	common.EventDuplicateResponse,
	common.EventRequestCompleted,
	common.EventRequestDispatched,
}

// --------------------------------------------------------------------------
// Observer
// --------------------------------------------------------------------------

// Observer implements common.IObserver. It keeps Prometheus style counters
// and histograms in a VictoriaMetrics set for scraping and in-process meters
// and timers in a go-metrics registry for the summary logged at shutdown.
type Observer struct {
	set      *metrics.Set
	registry gometrics.Registry

	events          map[common.EventKind]*metrics.Counter
	requestDuration *metrics.Histogram
	handlerDuration *metrics.Histogram
	requestErrors   *metrics.Counter

	open          gometrics.Counter
	executeTimer  gometrics.Timer
	dispatchTimer gometrics.Timer
	errorMeter    gometrics.Meter
}

// NewObserver creates an observer with its own metric set and registry
func NewObserver() *Observer {
	o := &Observer{
		set:      metrics.NewSet(),
		registry: gometrics.NewRegistry(),
		events:   make(map[common.EventKind]*metrics.Counter, len(allKinds)),
	}

	for _, kind := range allKinds {
		o.events[kind] = o.set.GetOrCreateCounter(fmt.Sprintf(`%s_events_total{kind=%q}`, prefix, kind.String()))
	}
	o.requestDuration = o.set.GetOrCreateHistogram(prefix + "_request_duration_seconds")
	o.handlerDuration = o.set.GetOrCreateHistogram(prefix + "_handler_duration_seconds")
	o.requestErrors = o.set.GetOrCreateCounter(prefix + "_request_errors_total")

	o.open = gometrics.GetOrRegisterCounter("connections.open", o.registry)
	o.executeTimer = gometrics.GetOrRegisterTimer("execute.latency", o.registry)
	o.dispatchTimer = gometrics.GetOrRegisterTimer("dispatch.latency", o.registry)
	o.errorMeter = gometrics.GetOrRegisterMeter("errors", o.registry)

	o.set.GetOrCreateGauge(prefix+"_open_connections", func() float64 {
		return float64(o.open.Count())
	})
	return o
}

// Observe records one event. It only touches atomic counters and never blocks.
func (o *Observer) Observe(ev common.Event) {
	if c, ok := o.events[ev.Kind]; ok {
		c.Inc()
	}

	switch ev.Kind {
	case common.EventConnect:
		o.open.Inc(1)
	case common.EventDisconnect:
		o.open.Dec(1)
	case common.EventRequestCompleted:
		o.requestDuration.Update(ev.Duration.Seconds())
		o.executeTimer.Update(ev.Duration)
		if ev.Err != nil {
			o.requestErrors.Inc()
			o.errorMeter.Mark(1)
		}
	case common.EventRequestDispatched:
		o.handlerDuration.Update(ev.Duration.Seconds())
		o.dispatchTimer.Update(ev.Duration)
	case common.EventDecodeError, common.EventDispatchError, common.EventDuplicateResponse:
		o.errorMeter.Mark(1)
	}
}

// WritePrometheus writes all metrics in the Prometheus text exposition format
func (o *Observer) WritePrometheus(w io.Writer) {
	o.set.WritePrometheus(w)
}

// Count returns the number of events of the given kind seen so far
func (o *Observer) Count(kind common.EventKind) uint64 {
	if c, ok := o.events[kind]; ok {
		return c.Get()
	}
	return 0
}

// --------------------------------------------------------------------------
// Snapshot
// --------------------------------------------------------------------------

// Snapshot is a point in time summary of the observed traffic
type Snapshot struct {
	OpenConnections int64
	Requests        int64
	MeanLatency     time.Duration
	P99Latency      time.Duration
	Dispatched      int64
	MeanHandlerTime time.Duration
	Errors          int64
	ErrorRate1m     float64
}

// Snapshot summarizes the go-metrics registry
func (o *Observer) Snapshot() Snapshot {
	exec := o.executeTimer.Snapshot()
	dispatch := o.dispatchTimer.Snapshot()
	errs := o.errorMeter.Snapshot()

	return Snapshot{
		OpenConnections: o.open.Count(),
		Requests:        exec.Count(),
		MeanLatency:     time.Duration(exec.Mean()),
		P99Latency:      time.Duration(exec.Percentile(0.99)),
		Dispatched:      dispatch.Count(),
		MeanHandlerTime: time.Duration(dispatch.Mean()),
		Errors:          errs.Count(),
		ErrorRate1m:     errs.Rate1(),
	}
}

// String returns a formatted string representation of the snapshot
func (s Snapshot) String() string {
	var sb strings.Builder

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	sb.WriteString("TRANSPORT METRICS\n")
	addField("Open Connections", fmt.Sprintf("%d", s.OpenConnections))
	addField("Requests", fmt.Sprintf("%d", s.Requests))
	addField("Mean Latency", s.MeanLatency.String())
	addField("P99 Latency", s.P99Latency.String())
	addField("Dispatched", fmt.Sprintf("%d", s.Dispatched))
	addField("Mean Handler Time", s.MeanHandlerTime.String())
	addField("Errors", fmt.Sprintf("%d", s.Errors))
	addField("Error Rate (1m)", fmt.Sprintf("%.2f/s", s.ErrorRate1m))

	return sb.String()
}

// LogSnapshot writes the current snapshot to the metrics logger
func (o *Observer) LogSnapshot() {
	Logger.Infof("\n%s", o.Snapshot())
}
