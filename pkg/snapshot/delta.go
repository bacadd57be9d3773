package snapshot

import (
	"sort"
	"time"
)

// Delta is the set difference between two snapshots.
type Delta struct {
	HasChanges    bool      `json:"has_changes" yaml:"has_changes"`
	AddedTables   []string  `json:"added_tables" yaml:"added_tables"`
	RemovedTables []string  `json:"removed_tables" yaml:"removed_tables"`
	AddedViews    []string  `json:"added_views" yaml:"added_views"`
	RemovedViews  []string  `json:"removed_views" yaml:"removed_views"`
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
}

// Changes returns the total number of added and removed objects.
func (d Delta) Changes() int {
	return len(d.AddedTables) + len(d.RemovedTables) + len(d.AddedViews) + len(d.RemovedViews)
}

// Compare computes what changed from prev to curr. A nil prev is the
// bootstrap case: everything in curr is reported as added. A nil curr is
// treated as empty. Compare does no I/O and does not modify its inputs.
func Compare(prev, curr *Snapshot) Delta {
	if curr == nil {
		curr = &Snapshot{}
	}

	var d Delta
	d.Timestamp = curr.Timestamp
	if prev == nil {
		d.AddedTables = sortedCopy(curr.Tables)
		d.RemovedTables = []string{}
		d.AddedViews = sortedCopy(curr.Views)
		d.RemovedViews = []string{}
	} else {
		d.AddedTables = difference(curr.Tables, prev.Tables)
		d.RemovedTables = difference(prev.Tables, curr.Tables)
		d.AddedViews = difference(curr.Views, prev.Views)
		d.RemovedViews = difference(prev.Views, curr.Views)
	}
	d.HasChanges = d.Changes() > 0
	return d
}

// difference returns a - b, sorted.
func difference(a, b []string) []string {
	exclude := make(map[string]struct{}, len(b))
	for _, s := range b {
		exclude[s] = struct{}{}
	}
	out := []string{}
	for _, s := range a {
		if _, ok := exclude[s]; !ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
