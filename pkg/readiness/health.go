// Package readiness implements a minimal health-checking mechanism for use as k8s readiness probes. A component stays
// ready once it has reported ready for the first time; this is not meant for monitoring.
package readiness

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"sync"
)

type Component string

// Registry tracks the readiness of a set of components.
type Registry struct {
	mu         sync.Mutex
	components map[Component]bool
}

// Default is the process-wide registry used by the package level helpers.
var Default = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{components: map[Component]bool{}}
}

// Register adds a component which must become ready for the registry to report ready.
func (r *Registry) Register(component Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.components[component]; ok {
		return fmt.Errorf("component %s already registered", component)
	}
	r.components[component] = false
	return nil
}

// SetReady marks the component as ready. Unregistered components are ignored.
func (r *Registry) SetReady(component Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.components[component]; ok {
		r.components[component] = true
	}
}

// Ready returns true if every registered component is ready.
func (r *Registry) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.components {
		if !v {
			return false
		}
	}
	return true
}

// ServeHTTP returns 200 OK if all components are ready, or 412 Precondition Failed otherwise. For operator convenience,
// a list of components and their states is returned as plain text (not meant for machine consumption!).
func (r *Registry) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	resp := new(bytes.Buffer)
	resp.WriteString("[not suitable for monitoring - do not parse]\n\n")

	r.mu.Lock()
	names := make([]string, 0, len(r.components))
	for k := range r.components {
		names = append(names, string(k))
	}
	sort.Strings(names)
	ready := true
	for _, k := range names {
		v := r.components[Component(k)]
		fmt.Fprintf(resp, "%s\t%v\n", k, v)
		if !v {
			ready = false
		}
	}
	r.mu.Unlock()

	if !ready {
		w.WriteHeader(http.StatusPreconditionFailed)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_, _ = resp.WriteTo(w)
}

// RegisterComponent registers the component with the default registry. It panics on duplicates.
func RegisterComponent(component Component) {
	if err := Default.Register(component); err != nil {
		panic(err)
	}
}

// SetReady marks the component as ready in the default registry.
func SetReady(component Component) {
	Default.SetReady(component)
}

// Handler serves the default registry.
func Handler(w http.ResponseWriter, r *http.Request) {
	Default.ServeHTTP(w, r)
}
