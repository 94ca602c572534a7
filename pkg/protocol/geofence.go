package protocol

import (
	"context"

	"github.com/fluxa-io/fluxa/pkg/models"
)

// GeofenceRegion is one circular region to register with the OS location
// subsystem. TransitionMask lists the transition kinds the region should
// report.
type GeofenceRegion struct {
	ID             string
	Latitude       float64
	Longitude      float64
	RadiusMeters   float64
	TransitionMask []models.TriggerKind
}

// TransitionCallback receives asynchronous geofence transitions from the OS.
// Kind is one of the geofence trigger kinds.
type TransitionCallback func(ctx context.Context, geofenceID string, kind models.TriggerKind)

// Geofencer wraps the OS geofencing subsystem. RegisterRegions replaces the
// full registered set atomically; SetTransitionCallback installs the receiver
// for subsequent transitions.
type Geofencer interface {
	RegisterRegions(ctx context.Context, regions []GeofenceRegion) error
	SetTransitionCallback(callback TransitionCallback)
}
