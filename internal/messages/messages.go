// Package messages imports all template packages to trigger their init()
// registration. Import this package for side effects only.
package messages

import (
	// Import all template packages to register them with the registry.
	_ "tripwatch/internal/messages/boarding"
	_ "tripwatch/internal/messages/cancelled"
	_ "tripwatch/internal/messages/confirmation"
	_ "tripwatch/internal/messages/delayed"
	_ "tripwatch/internal/messages/gatechange"
	_ "tripwatch/internal/messages/itinerary"
	_ "tripwatch/internal/messages/landing"
	_ "tripwatch/internal/messages/reminder"
)
