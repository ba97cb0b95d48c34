package admission

import "github.com/rustyeddy/goldpair/signal"

// ApprovalRegistry holds the per-category, per-timeframe zone gates. All
// gates start closed.
type ApprovalRegistry struct {
	zones map[signal.Category]map[signal.Timeframe]bool
}

func NewApprovalRegistry() *ApprovalRegistry {
	r := &ApprovalRegistry{zones: make(map[signal.Category]map[signal.Timeframe]bool)}
	for _, c := range signal.Categories {
		r.zones[c] = make(map[signal.Timeframe]bool)
		for _, tf := range signal.Timeframes {
			r.zones[c][tf] = false
		}
	}
	return r
}

func (r *ApprovalRegistry) Apply(u signal.ApprovalUpdate) {
	r.zones[u.Category()][u.Timeframe] = u.Approval
}

// Approved reports whether every timeframe gate of cat is open.
func (r *ApprovalRegistry) Approved(cat signal.Category) bool {
	z, ok := r.zones[cat]
	if !ok {
		return false
	}
	for _, tf := range signal.Timeframes {
		if !z[tf] {
			return false
		}
	}
	return true
}

// Snapshot copies the gate table keyed by plain strings.
func (r *ApprovalRegistry) Snapshot() map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(r.zones))
	for c, z := range r.zones {
		m := make(map[string]bool, len(z))
		for tf, v := range z {
			m[string(tf)] = v
		}
		out[string(c)] = m
	}
	return out
}
