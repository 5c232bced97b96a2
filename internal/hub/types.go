package hub

import "github.com/ZehenForever/sto-log-parser/internal/engine"

const (
	msgSnapshot    = "snapshot"
	msgStoreUpdate = "store_update"
)

// SnapshotMessage is the first frame every websocket subscriber receives.
type SnapshotMessage struct {
	Type     string          `json:"type"`
	Snapshot engine.Snapshot `json:"snapshot"`
}

// StoreUpdateMessage carries summary rows for the combats touched by one
// store mutation. Subscribers fetch details over the REST routes.
type StoreUpdateMessage struct {
	Type    string              `json:"type"`
	Version uint64              `json:"version"`
	Kind    string              `json:"kind"`
	Combats []engine.CombatView `json:"combats"`
}

type HealthResponse struct {
	Ok          bool   `json:"ok"`
	Version     uint64 `json:"version"`
	CombatCount int    `json:"combatCount"`
	Subscribers int    `json:"subscribers"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
