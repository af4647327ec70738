// Package types contains common types used across the application
package types

// Entry represents a leaderboard entry
type Entry struct {
	Rank     int     `json:"rank"`
	EntityID int64   `json:"entity_id"`
	Points   float64 `json:"points"`
}

// Breakdown is one kill chain of an entity's breakdown.
type Breakdown struct {
	RepresentativeID int64   `json:"representative_id"`
	Kills            []int64 `json:"kills"`
	Points           float64 `json:"points"`
}
