package server

// Request types for WebSocket commands with validation tags.

// SamplerUpdateRequest is the request body for sampler/update.
type SamplerUpdateRequest struct {
	IntervalMs int64 `json:"interval_ms" validate:"required,gte=50,lte=60000"`
}

// EventsGetRequest is the request body for events/get.
type EventsGetRequest struct {
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
	Offset int    `json:"offset" validate:"gte=0"`
	Filter string `json:"filter" validate:"omitempty,oneof=all diagnostic gap track"`
}
