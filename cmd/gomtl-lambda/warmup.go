package main

import "encoding/json"

// WarmupSource identifies scheduled keep-warm events.
const WarmupSource = "warmup"

// WarmupResponse is returned for keep-warm events.
type WarmupResponse struct {
	Status string `json:"status"`
}

// IsWarmupEvent reports whether event is a scheduled keep-warm ping.
func IsWarmupEvent(event json.RawMessage) bool {
	var probe struct {
		Source string `json:"source"`
	}
	if err := json.Unmarshal(event, &probe); err != nil {
		return false
	}
	return probe.Source == WarmupSource
}

// HandleWarmup answers a keep-warm ping without touching the API.
func HandleWarmup() WarmupResponse {
	return WarmupResponse{Status: "warm"}
}
