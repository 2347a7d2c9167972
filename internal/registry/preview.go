package registry

import "tripwatch/internal/trip"

// Previewable is implemented by renderers that carry a canned sample input.
// The review console uses it to show what each message looks like without
// touching a real trip.
type Previewable interface {
	// Sample returns an input that produces a representative preview.
	Sample() Input
}

// Preview renders a sample message for every renderer that supports it,
// keyed by notification type.
func (reg *Registry) Preview() map[trip.NotificationType]string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make(map[trip.NotificationType]string)
	for t, r := range reg.byType {
		p, ok := r.(Previewable)
		if !ok {
			continue
		}
		out[t] = r.Render(r.Vars(p.Sample()))
	}
	return out
}
