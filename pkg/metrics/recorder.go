package metrics

import (
	"strings"
	"sync"

	"github.com/go-kit/kit/metrics"
)

// Recorder keeps every series value in memory so tests can assert on them.
type Recorder struct {
	mu     sync.Mutex
	values map[string]float64
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{values: map[string]float64{}}
}

// RecorderMetrics returns Metrics whose series are all kept by r.
func RecorderMetrics(r *Recorder) *Metrics {
	return &Metrics{
		ProcessorInvocations:  r.counter("processor_invocations"),
		ProcessorSuccesses:    r.counter("processor_successes"),
		ProcessorErrors:       r.counter("processor_errors"),
		GotConnection:         r.counter("got_connection"),
		UnableToGetConnection: r.counter("unable_to_get_connection"),
		LatestVersion:         r.gauge("processor_latest_version"),
		ErrorVersions:         r.gauge("processor_error_versions"),
	}
}

// Value returns the series identified by name and label values, e.g.
// Value("processor_successes", "name", "default").
func (r *Recorder) Value(name string, labelValues ...string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[seriesKey(name, labelValues)]
}

func (r *Recorder) add(key string, delta float64) {
	r.mu.Lock()
	r.values[key] += delta
	r.mu.Unlock()
}

func (r *Recorder) set(key string, value float64) {
	r.mu.Lock()
	r.values[key] = value
	r.mu.Unlock()
}

func (r *Recorder) counter(name string) metrics.Counter {
	return recordedCounter{&recorded{r: r, name: name}}
}

func (r *Recorder) gauge(name string) metrics.Gauge {
	return recordedGauge{&recorded{r: r, name: name}}
}

func seriesKey(name string, labelValues []string) string {
	return name + "{" + strings.Join(labelValues, ",") + "}"
}

type recorded struct {
	r    *Recorder
	name string
	lvs  []string
}

func (c *recorded) With(labelValues ...string) *recorded {
	lvs := append(append([]string{}, c.lvs...), labelValues...)
	return &recorded{r: c.r, name: c.name, lvs: lvs}
}

func (c *recorded) key() string { return seriesKey(c.name, c.lvs) }

type recordedCounter struct{ *recorded }

type recordedGauge struct{ *recorded }

var (
	_ metrics.Counter = recordedCounter{}
	_ metrics.Gauge   = recordedGauge{}
)

func (c recordedCounter) With(labelValues ...string) metrics.Counter {
	return recordedCounter{c.recorded.With(labelValues...)}
}

func (c recordedCounter) Add(delta float64) { c.r.add(c.key(), delta) }

func (g recordedGauge) With(labelValues ...string) metrics.Gauge {
	return recordedGauge{g.recorded.With(labelValues...)}
}

func (g recordedGauge) Set(value float64) { g.r.set(g.key(), value) }

func (g recordedGauge) Add(delta float64) { g.r.add(g.key(), delta) }
