package destinations

import (
	"context"
	"sync"
	"time"

	"github.com/nimbus-works/nimbus-event-forwarder/internal/domain"
)

// Outcome records one delivery attempt to one destination.
type Outcome struct {
	Destination string    `json:"destination"`
	Kind        Kind      `json:"kind"`
	Succeeded   bool      `json:"succeeded"`
	MessageID   string    `json:"message_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// Fanout dispatches an envelope to every destination in a snapshot.
type Fanout struct {
	reg Registry
	log Logger
}

// NewFanout builds a dispatcher over the sender registry.
func NewFanout(reg Registry, log Logger) *Fanout {
	return &Fanout{reg: reg, log: ensureLogger(log)}
}

// Dispatch attempts delivery to each enabled destination concurrently and
// returns exactly one outcome per destination, in snapshot order. Failures
// are recorded in the outcomes; Dispatch itself never fails, and one
// destination's failure never prevents the attempts to the others.
func (f *Fanout) Dispatch(ctx context.Context, env domain.Envelope, snap Snapshot) []Outcome {
	dests := snap.All()
	if f == nil || len(dests) == 0 {
		return nil
	}

	outcomes := make([]Outcome, len(dests))
	var wg sync.WaitGroup
	for i, d := range dests {
		wg.Add(1)
		go func(i int, d Destination) {
			defer wg.Done()
			outcomes[i] = f.attempt(ctx, env, d)
		}(i, d)
	}
	wg.Wait()

	succeeded := 0
	for _, out := range outcomes {
		if out.Succeeded {
			succeeded++
		}
	}
	f.log.InfoObj("dispatch completed", "dispatch_summary", map[string]any{
		"bucket":     env.Bucket,
		"object_key": env.Key,
		"attempted":  len(outcomes),
		"succeeded":  succeeded,
		"failed":     len(outcomes) - succeeded,
	})
	return outcomes
}

func (f *Fanout) attempt(ctx context.Context, env domain.Envelope, d Destination) Outcome {
	out := Outcome{
		Destination: d.Name,
		Kind:        d.Kind,
		AttemptedAt: time.Now().UTC(),
	}

	if d.Address == "" {
		out.Error = "no address configured"
		f.log.WarnObj("destination skipped", "dispatch_no_address", map[string]any{
			"destination": d.Name,
			"kind":        string(d.Kind),
		})
		return out
	}

	sender, err := f.reg.SenderFor(d)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	msg, err := BuildMessage(env, d)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	id, err := sender.Send(ctx, d, msg)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	out.Succeeded = true
	out.MessageID = id
	return out
}
