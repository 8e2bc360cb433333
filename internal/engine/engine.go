package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nimbus-works/nimbus-event-forwarder/internal/config"
	"github.com/nimbus-works/nimbus-event-forwarder/internal/logger"
	"github.com/nimbus-works/nimbus-event-forwarder/internal/metrics"
	"github.com/nimbus-works/nimbus-event-forwarder/pkg/destinations"
	"github.com/nimbus-works/nimbus-event-forwarder/pkg/events"
)

// ErrInvalidPayload marks payloads that cannot be split into event records.
// Hosts map it onto their protocol's bad-request response.
var ErrInvalidPayload = errors.New("invalid notification payload")

// RecordResult is the processing product of one input record: either the
// normalized identity plus its delivery outcomes, or the normalization error.
type RecordResult struct {
	Index     int                         `json:"index"`
	EventName string                      `json:"event_name,omitempty"`
	Bucket    string                      `json:"bucket,omitempty"`
	Key       string                      `json:"key,omitempty"`
	Error     string                      `json:"error,omitempty"`
	Outcomes  []destinations.Outcome      `json:"outcomes,omitempty"`
	Summary   destinations.OutcomeSummary `json:"summary"`
}

// InvocationResult aggregates one forwarding invocation. Per-record and
// per-destination failures live here as data; they do not fail the
// invocation itself.
type InvocationResult struct {
	InvocationID        string         `json:"invocation_id"`
	Source              string         `json:"config_source,omitempty"`
	EnabledDestinations int            `json:"enabled_destinations"`
	Records             int            `json:"records"`
	RecordsSucceeded    int            `json:"records_succeeded"`
	RecordsFailed       int            `json:"records_failed"`
	NormalizationErrors int            `json:"normalization_errors"`
	Message             string         `json:"message"`
	Results             []RecordResult `json:"results"`
}

// configState is one loaded configuration generation with its
// enabled-destination snapshot. Invocations read a single state pointer, so
// a concurrent reload never changes the destination set mid-invocation.
type configState struct {
	cfg  *destinations.Config
	snap destinations.Snapshot
}

// Engine runs forwarding invocations: resolve config, normalize the batch,
// fan out every envelope, aggregate the outcomes.
type Engine struct {
	destinationsFile string
	reloadAlways     bool
	fanout           *destinations.Fanout
	log              logger.Logger
	state            atomic.Pointer[configState]
}

// NewEngine builds an engine over the sender registry and performs the
// initial destination config load, failing fast on a fatal config source.
func NewEngine(cfg *config.Config, reg destinations.Registry, log logger.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}

	e := &Engine{
		destinationsFile: cfg.DestinationsFile,
		reloadAlways:     cfg.ReloadPolicy == config.ReloadAlways,
		fanout:           destinations.NewFanout(reg, log),
		log:              log,
	}

	st, err := e.loadState()
	if err != nil {
		return nil, err
	}
	e.state.Store(st)
	e.logVerification(st)
	return e, nil
}

// Process runs one invocation over a raw notification payload. The returned
// error is non-nil only for an invalid payload or a fatal configuration
// source; delivery failures are reported inside the result.
func (e *Engine) Process(ctx context.Context, transport string, payload []byte) (InvocationResult, error) {
	res := InvocationResult{InvocationID: uuid.NewString()}

	st, err := e.currentState()
	if err != nil {
		metrics.InvocationsTotal.WithLabelValues(transport, "config_error").Inc()
		return res, err
	}
	res.Source = st.cfg.Source
	res.EnabledDestinations = st.snap.Total()
	e.logVerification(st)

	records, err := events.SplitBatch(payload)
	if err != nil {
		metrics.InvocationsTotal.WithLabelValues(transport, "invalid_payload").Inc()
		return res, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	res.Records = len(records)
	metrics.RecordsTotal.Add(float64(len(records)))

	res.Results = make([]RecordResult, 0, len(records))
	for _, nr := range events.Normalize(records) {
		rr := RecordResult{Index: nr.Index}
		if nr.Err != nil {
			rr.Error = nr.Err.Error()
			res.NormalizationErrors++
			metrics.NormalizationErrors.Inc()
			e.log.WarnObj("record normalization failed", "record_error", map[string]any{
				"invocation_id": res.InvocationID,
				"index":         nr.Index,
				"error":         nr.Err.Error(),
			})
			res.Results = append(res.Results, rr)
			continue
		}

		rr.EventName = nr.Envelope.EventName
		rr.Bucket = nr.Envelope.Bucket
		rr.Key = nr.Envelope.Key

		start := time.Now()
		rr.Outcomes = e.fanout.Dispatch(ctx, nr.Envelope, st.snap)
		metrics.DispatchDuration.Observe(time.Since(start).Seconds())
		rr.Summary = destinations.SummarizeOutcomes(rr.Outcomes)
		for _, out := range rr.Outcomes {
			result := "success"
			if !out.Succeeded {
				result = "failure"
			}
			metrics.PublishesTotal.WithLabelValues(string(out.Kind), result).Inc()
		}
		res.Results = append(res.Results, rr)
	}

	for _, rr := range res.Results {
		if rr.Error == "" && rr.Summary.Failed == 0 {
			res.RecordsSucceeded++
		} else {
			res.RecordsFailed++
		}
	}
	res.Message = fmt.Sprintf("Processed %d records: %d successful, %d failed",
		res.Records, res.RecordsSucceeded, res.RecordsFailed)

	status := "ok"
	if res.RecordsFailed > 0 {
		status = "partial"
	}
	metrics.InvocationsTotal.WithLabelValues(transport, status).Inc()

	e.log.InfoObj("invocation completed", "invocation_summary", map[string]any{
		"invocation_id":        res.InvocationID,
		"transport":            transport,
		"records":              res.Records,
		"records_succeeded":    res.RecordsSucceeded,
		"records_failed":       res.RecordsFailed,
		"normalization_errors": res.NormalizationErrors,
		"enabled_destinations": res.EnabledDestinations,
	})
	return res, nil
}

// Reload re-resolves the destination configuration and swaps it in for
// subsequent invocations.
func (e *Engine) Reload() error {
	st, err := e.loadState()
	if err != nil {
		return err
	}
	e.state.Store(st)
	e.logVerification(st)
	return nil
}

// Verification reports over the configuration the next invocation will use.
func (e *Engine) Verification() destinations.VerificationReport {
	st := e.state.Load()
	if st == nil {
		return destinations.VerificationReport{}
	}
	return destinations.BuildVerification(st.cfg, st.snap)
}

func (e *Engine) currentState() (*configState, error) {
	if e.reloadAlways {
		st, err := e.loadState()
		if err != nil {
			return nil, err
		}
		e.state.Store(st)
		return st, nil
	}
	if st := e.state.Load(); st != nil {
		return st, nil
	}
	return e.loadState()
}

func (e *Engine) loadState() (*configState, error) {
	cfg, err := destinations.Load(e.destinationsFile)
	if err != nil {
		metrics.ConfigReloads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load destinations config: %w", err)
	}
	for _, w := range cfg.Warnings {
		e.log.WarnObj("destination config anomaly", "config_warning", w)
	}
	metrics.ConfigReloads.WithLabelValues("ok").Inc()
	return &configState{cfg: cfg, snap: destinations.TakeSnapshot(cfg)}, nil
}

func (e *Engine) logVerification(st *configState) {
	report := destinations.BuildVerification(st.cfg, st.snap)
	e.log.InfoObj("=== DESTINATION VERIFICATION ===", "config_source", st.cfg.Source)
	e.log.InfoObj(report.Summary(), "destination_types", report.KindCounts)
	e.log.InfoObj("=== END DESTINATION VERIFICATION ===", "verification_status", report.Status)
}
