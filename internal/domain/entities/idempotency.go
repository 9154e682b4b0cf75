package entities

import "time"

// IdempotencyScope is the closed set of dedup scopes.
type IdempotencyScope string

const (
	ScopeInboundRequest IdempotencyScope = "inbound-request"
	ScopeProcessorEvent IdempotencyScope = "processor-event"
	ScopeOutboundCall   IdempotencyScope = "outbound-call"
)

// ReservationState is the result of Store.Reserve.
type ReservationState string

const (
	ReservationFresh     ReservationState = "fresh"
	ReservationInFlight  ReservationState = "in_flight"
	ReservationCommitted ReservationState = "committed"
)

// IdempotencyKey is the persisted dedup record.
type IdempotencyKey struct {
	Scope            IdempotencyScope `json:"scope"`
	Key              string           `json:"key"`
	FirstSeenAt      time.Time        `json:"firstSeenAt"`
	ResponseEnvelope []byte           `json:"responseEnvelope,omitempty"`
}
