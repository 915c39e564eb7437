package platform

import (
	"sync"
	"time"
)

// Registry holds classifiers in evaluation order; the first match wins.
type Registry struct {
	mu          sync.RWMutex
	classifiers []Classifier
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		classifiers: make([]Classifier, 0),
	}
}

// Register appends a classifier. Register specialisations before the
// general case they overlap with.
func (r *Registry) Register(c Classifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifiers = append(r.classifiers, c)
}

// Classify returns the kind of the first classifier that matches url.
func (r *Registry) Classify(url string) Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.classifiers {
		if c.Matches(url) {
			return c.Kind()
		}
	}
	return KindUnknown
}

// ExtractContentID asks the classifier registered for k to extract an id.
// When there is none, or extraction fails, a synthetic id based on now is returned.
func (r *Registry) ExtractContentID(url string, k Kind, now time.Time) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.classifiers {
		if c.Kind() != k {
			continue
		}
		if id, ok := c.ExtractID(url); ok && id != "" {
			return id
		}
		break
	}
	return syntheticID(k, now)
}

// Kinds returns the registered kinds in evaluation order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.classifiers))
	for _, c := range r.classifiers {
		kinds = append(kinds, c.Kind())
	}
	return kinds
}

// DefaultRegistry creates a registry with all built-in classifiers.
// Shorts precedes YouTube because its pattern is the narrower one.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewYouTubeShortsClassifier())
	r.Register(NewYouTubeClassifier())
	r.Register(NewInstagramClassifier())
	r.Register(NewTikTokClassifier())
	return r
}
