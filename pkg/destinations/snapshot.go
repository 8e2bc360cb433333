package destinations

import "time"

// Snapshot is the immutable per-invocation view of the enabled destinations,
// partitioned by kind with declaration order preserved. Dispatch and
// reporting read the snapshot only, so a concurrent config swap never
// changes the destination set mid-invocation.
type Snapshot struct {
	Queues   []Destination
	Topics   []Destination
	Webhooks []Destination
	TakenAt  time.Time
}

// TakeSnapshot projects the enabled destinations out of a configuration.
// It is a pure read of cfg and may be called repeatedly.
func TakeSnapshot(cfg *Config) Snapshot {
	snap := Snapshot{TakenAt: time.Now().UTC()}
	if cfg == nil {
		return snap
	}
	snap.Queues = enabledOnly(cfg.Queues)
	snap.Topics = enabledOnly(cfg.Topics)
	snap.Webhooks = enabledOnly(cfg.Webhooks)
	return snap
}

func enabledOnly(list []Destination) []Destination {
	out := make([]Destination, 0, len(list))
	for _, d := range list {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// All returns every enabled destination, queues first, in declaration order.
func (s Snapshot) All() []Destination {
	out := make([]Destination, 0, s.Total())
	out = append(out, s.Queues...)
	out = append(out, s.Topics...)
	out = append(out, s.Webhooks...)
	return out
}

// Total returns the number of enabled destinations across all kinds.
func (s Snapshot) Total() int {
	return len(s.Queues) + len(s.Topics) + len(s.Webhooks)
}

// ByKind returns the enabled destinations of one kind.
func (s Snapshot) ByKind(kind Kind) []Destination {
	switch kind {
	case KindSQS:
		return s.Queues
	case KindSNS:
		return s.Topics
	case KindWebhook:
		return s.Webhooks
	default:
		return nil
	}
}

// KindCounts returns the number of enabled destinations per kind, omitting
// kinds with none.
func (s Snapshot) KindCounts() map[Kind]int {
	counts := make(map[Kind]int, 3)
	for _, kind := range []Kind{KindSQS, KindSNS, KindWebhook} {
		if n := len(s.ByKind(kind)); n > 0 {
			counts[kind] = n
		}
	}
	return counts
}
