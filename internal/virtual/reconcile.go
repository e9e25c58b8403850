package virtual

// Skip records an entry Reconcile refused to judge.
type Skip struct {
	LocalID string `json:"local_id"`
	Reason  string `json:"reason"`
}

// Plan is the outcome of a reconciliation pass.
type Plan struct {
	// Remove lists orphaned local ids in input order.
	Remove []string `json:"remove"`

	// Keep lists entries whose service is currently on the bus.
	Keep []string `json:"keep"`

	// Skipped lists entries that were never considered for removal.
	Skipped []Skip `json:"skipped"`
}

// Analyze classifies every entry against the active bus services.
// It performs no I/O.
func Analyze(entries []Entry, activeServices []string) Plan {
	active := make(map[string]struct{}, len(activeServices))
	for _, s := range activeServices {
		active[s] = struct{}{}
	}

	var p Plan
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.LocalID]; dup {
			continue
		}
		seen[e.LocalID] = struct{}{}

		service, err := e.ExpectedService()
		if err != nil {
			p.Skipped = append(p.Skipped, Skip{LocalID: e.LocalID, Reason: err.Error()})
			continue
		}
		if _, ok := active[service]; ok {
			p.Keep = append(p.Keep, e.LocalID)
			continue
		}
		p.Remove = append(p.Remove, e.LocalID)
	}
	return p
}

// Reconcile returns the local ids of entries whose expected service is
// known and absent from activeServices. Entries that do not follow the
// naming convention or carry no parseable type and instance are never
// returned.
func Reconcile(entries []Entry, activeServices []string) []string {
	return Analyze(entries, activeServices).Remove
}
