// Package registry provides a message renderer registry for dispatching
// notifications to the template that builds them.
package registry

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"tripwatch/internal/trip"
)

// Input carries everything a renderer can draw on when building variables.
// Trip is always set; the remaining fields are filled per notification type
// and ignored by renderers that have no use for them.
type Input struct {
	Trip *trip.Trip

	// NewDeparture is the revised estimated departure, for delay messages.
	NewDeparture *time.Time

	// NewGate is the freshly assigned departure gate.
	NewGate string

	// Weather is a one-line destination forecast for reminder messages.
	Weather string
}

// Renderer is implemented by each message template.
type Renderer interface {
	// Type returns the notification type this renderer produces.
	Type() trip.NotificationType

	// Vars builds the positional template variables, in slot order.
	// The order is part of the WhatsApp template contract: slot {{1}}
	// is Vars()[0] and so on.
	Vars(in Input) []string

	// Render fills the message body with already-built variables.
	Render(vars []string) string
}

// Fill substitutes {{1}}..{{n}} slots in a body with vars. Slots with no
// matching variable are left in place.
func Fill(body string, vars []string) string {
	for i, v := range vars {
		body = strings.ReplaceAll(body, "{{"+strconv.Itoa(i+1)+"}}", v)
	}
	return body
}

// Registry holds registered renderers keyed by notification type.
type Registry struct {
	mu     sync.RWMutex
	byType map[trip.NotificationType]Renderer
}

// New creates a new Registry instance.
func New() *Registry {
	return &Registry{
		byType: make(map[trip.NotificationType]Renderer),
	}
}

// Global default registry.
var defaultRegistry = New()

// Default returns the global registry instance.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a renderer to the default registry.
// Called during init() in each template package.
func Register(r Renderer) {
	defaultRegistry.Register(r)
}

// Register adds a renderer to the registry. A second renderer for the same
// type replaces the first.
func (reg *Registry) Register(r Renderer) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.byType[r.Type()] = r
}

// ByType returns the renderer for a notification type.
func (reg *Registry) ByType(t trip.NotificationType) (Renderer, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.byType[t]
	return r, ok
}

// Types returns all registered notification types, sorted.
func (reg *Registry) Types() []trip.NotificationType {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	types := make([]trip.NotificationType, 0, len(reg.byType))
	for t := range reg.byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// All returns all registered renderers ordered by type.
// This is useful for debugging and listing available templates.
func (reg *Registry) All() []Renderer {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]Renderer, 0, len(reg.byType))
	for _, r := range reg.byType {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}

// RendererCount returns the number of registered renderers.
func (reg *Registry) RendererCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.byType)
}
