package session

import (
	"slices"

	"github.com/desertthunder/vsa/internal/models"
)

// Registry is the client's copy of the analysis list, authoritative only up to the last snapshot.
// It is owned by the session reducer and is not safe for concurrent use.
type Registry struct {
	items []models.AnalysisSummary
	index map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// ApplySnapshot replaces every entry. There is no partial update.
func (r *Registry) ApplySnapshot(summaries []models.AnalysisSummary) {
	r.items = slices.Clone(summaries)
	r.index = make(map[string]int, len(summaries))
	for i, s := range r.items {
		r.index[s.ID] = i
	}
}

// List returns the entries in snapshot order.
func (r *Registry) List() []models.AnalysisSummary {
	return slices.Clone(r.items)
}

// Get returns the entry with id.
func (r *Registry) Get(id string) (models.AnalysisSummary, bool) {
	i, ok := r.index[id]
	if !ok {
		return models.AnalysisSummary{}, false
	}
	return r.items[i], true
}

func (r *Registry) Len() int { return len(r.items) }
