package core

import (
	"context"
	"fmt"
	"sort"
)

// ReferenceLookup resolves reference entity names to their ids. Each method
// returns only the names that exist; unknown names are absent from the map.
type ReferenceLookup interface {
	StatesByName(ctx context.Context, names []string) (map[string]int64, error)
	CategoriesByName(ctx context.Context, names []string) (map[string]int64, error)
	MeasuresByName(ctx context.Context, names []string) (map[string]int64, error)
}

// ReferenceSnapshot is a consistent view of the reference entities named in
// one upload. The validator and the committer share the same snapshot.
type ReferenceSnapshot struct {
	States     map[string]int64
	Categories map[string]int64
	Measures   map[string]int64
}

// ReferenceResolver batch-loads the reference entities needed for a file.
type ReferenceResolver struct {
	lookup ReferenceLookup
}

// NewReferenceResolver creates a resolver backed by lookup.
func NewReferenceResolver(lookup ReferenceLookup) *ReferenceResolver {
	return &ReferenceResolver{lookup: lookup}
}

// Load fetches every distinct state, category and measure name in rows using
// one query per entity type.
func (r *ReferenceResolver) Load(ctx context.Context, rows []NormalizedRow) (*ReferenceSnapshot, error) {
	if len(rows) == 0 {
		return &ReferenceSnapshot{
			States:     map[string]int64{},
			Categories: map[string]int64{},
			Measures:   map[string]int64{},
		}, nil
	}

	states := make(map[string]struct{})
	categories := make(map[string]struct{})
	measures := make(map[string]struct{})
	for _, row := range rows {
		states[row.State] = struct{}{}
		categories[row.Category] = struct{}{}
		measures[row.Measure] = struct{}{}
	}

	snap := &ReferenceSnapshot{}
	var err error

	if snap.States, err = r.lookup.StatesByName(ctx, sortedKeys(states)); err != nil {
		return nil, fmt.Errorf("load states: %w", err)
	}
	if snap.Categories, err = r.lookup.CategoriesByName(ctx, sortedKeys(categories)); err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	if snap.Measures, err = r.lookup.MeasuresByName(ctx, sortedKeys(measures)); err != nil {
		return nil, fmt.Errorf("load measures: %w", err)
	}

	return snap, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
