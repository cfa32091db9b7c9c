package metrics

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Metric names written by WriteFile.
const (
	NameAttempts      = "fmpost_submission_attempts_total"
	NameTokenRequests = "fmpost_token_requests_total"
	NameSuccess       = "fmpost_submission_success"
	NameDuration      = "fmpost_submission_duration_seconds"
	NameLastRun       = "fmpost_submission_last_run_timestamp_seconds"
)

// Recorder accumulates counters for a single run. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	attempts map[string]float64
	tokens   map[string]float64
	success  bool
	started  time.Time
	finished time.Time
	now      func() time.Time
}

// New returns a Recorder whose run starts now.
func New() *Recorder {
	r := &Recorder{
		attempts: make(map[string]float64),
		tokens:   make(map[string]float64),
		now:      time.Now,
	}
	r.started = r.now()
	return r
}

// Attempt counts one submission attempt with the given outcome.
func (r *Recorder) Attempt(outcome string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[outcome]++
}

// TokenRequest counts one token request with the given outcome.
func (r *Recorder) TokenRequest(outcome string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[outcome]++
}

// Finish marks the run complete.
func (r *Recorder) Finish(success bool) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success = success
	r.finished = r.now()
}

// Families returns the recorded values as metric families, sorted by name.
func (r *Recorder) Families() []*dto.MetricFamily {
	r.mu.Lock()
	defer r.mu.Unlock()

	finished := r.finished
	if finished.IsZero() {
		finished = r.now()
	}
	success := 0.0
	if r.success {
		success = 1
	}

	return []*dto.MetricFamily{
		counterFamily(NameAttempts, "Submission attempts by outcome.", r.attempts),
		gaugeFamily(NameDuration, "Wall time of the last submission run.", finished.Sub(r.started).Seconds()),
		gaugeFamily(NameLastRun, "Unix time the last submission run finished.", float64(finished.Unix())+float64(finished.Nanosecond())/1e9),
		gaugeFamily(NameSuccess, "1 if the last submission was accepted, else 0.", success),
		counterFamily(NameTokenRequests, "Token requests by outcome.", r.tokens),
	}
}

// WriteFile writes the exposition to path atomically: the text goes to a
// temporary file in the same directory which is then renamed over path.
func (r *Recorder) WriteFile(path string) error {
	if r == nil || path == "" {
		return nil
	}

	var buf bytes.Buffer
	for _, mf := range r.Families() {
		if len(mf.GetMetric()) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".fmpost-*.prom.tmp")
	if err != nil {
		return fmt.Errorf("metrics: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("metrics: write: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("metrics: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metrics: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("metrics: rename: %w", err)
	}
	return nil
}

func counterFamily(name, help string, byOutcome map[string]float64) *dto.MetricFamily {
	outcomes := make([]string, 0, len(byOutcome))
	for o := range byOutcome {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)

	mf := &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, o := range outcomes {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{{Name: proto.String("outcome"), Value: proto.String(o)}},
			Counter: &dto.Counter{Value: proto.Float64(byOutcome[o])},
		})
	}
	return mf
}

func gaugeFamily(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}
