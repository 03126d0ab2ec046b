// Package registry holds the provider adapters known to the process and resolves them per capability.
package registry

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/desertthunder/tunemeld/internal/providers"
	"github.com/desertthunder/tunemeld/internal/shared"
)

// Priority is the configured source order per capability; earlier names win.
type Priority map[providers.Capability][]string

// PriorityFrom converts the [priority] config table. Album lookups follow the metadata order.
func PriorityFrom(cfg shared.PriorityConfig) Priority {
	return Priority{
		providers.Metadata: cfg.Metadata,
		providers.Album:    cfg.Metadata,
		providers.Lyrics:   cfg.Lyrics,
		providers.Download: cfg.Download,
	}
}

// Entry is a registered adapter as seen at resolve time.
type Entry struct {
	Name         string
	Adapter      providers.Adapter
	Capabilities providers.Capability
	Slot         int // discovery order
	Weight       int // position in the resolved priority order, lower is stronger
}

// Registry is safe for concurrent use. Resolve and Get return copies; replacing an adapter
// does not affect entries already handed out.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	next     int
	priority Priority
}

// New creates an empty registry with the given priority lists.
func New(priority Priority) *Registry {
	if priority == nil {
		priority = Priority{}
	}
	return &Registry{entries: make(map[string]Entry), priority: priority}
}

// Register adds adapter under its service name with the declared capabilities.
//
// Registering a name again replaces the adapter and capabilities but keeps the original discovery slot.
// Fails if caps is empty or declares a capability the adapter does not implement.
func (r *Registry) Register(adapter providers.Adapter, caps providers.Capability) error {
	if adapter == nil {
		return fmt.Errorf("%w: nil adapter", shared.ErrInvalidArgument)
	}
	name := strings.ToLower(adapter.Name())
	if name == "" {
		return fmt.Errorf("%w: adapter has no name", shared.ErrInvalidArgument)
	}
	if caps == 0 {
		return fmt.Errorf("%w: %s declares no capabilities", shared.ErrUnsupported, name)
	}
	if impl := providers.Detect(adapter); !impl.Has(caps) {
		return fmt.Errorf("%w: %s declares %v but implements %v", shared.ErrUnsupported, name, caps, impl)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slot := r.next
	if prev, ok := r.entries[name]; ok {
		slot = prev.Slot
	} else {
		r.next++
	}
	r.entries[name] = Entry{Name: name, Adapter: adapter, Capabilities: caps, Slot: slot}
	return nil
}

// Unregister removes name. It reports whether an entry was removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	name = strings.ToLower(name)
	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	return true
}

// Get returns the entry registered under name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[strings.ToLower(name)]
	return e, ok
}

// Names returns registered service names in discovery order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Slot < entries[j].Slot })

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// Resolve returns the entries providing capability, ordered by the configured priority list for it;
// unlisted services follow in discovery order. A non-empty filter restricts the result to those names.
// An empty result is not an error.
func (r *Registry) Resolve(capability providers.Capability, filter ...string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	allowed := make(map[string]bool, len(filter))
	for _, f := range filter {
		allowed[strings.ToLower(f)] = true
	}

	order := r.priority[capability]
	rank := func(name string) int {
		if i := slices.Index(order, name); i >= 0 {
			return i
		}
		return -1
	}

	var out []Entry
	for _, e := range r.entries {
		if !e.Capabilities.Has(capability) {
			continue
		}
		if len(allowed) > 0 && !allowed[e.Name] {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		ri, rj := rank(out[i].Name), rank(out[j].Name)
		switch {
		case ri >= 0 && rj >= 0:
			return ri < rj
		case ri >= 0:
			return true
		case rj >= 0:
			return false
		default:
			return out[i].Slot < out[j].Slot
		}
	})

	for i := range out {
		out[i].Weight = i
	}
	return out
}
