// Package model contains domain models passed between layers.
package model

import "time"

// UnverifiedHash marks killmails zKillboard lists without a usable hash.
const UnverifiedHash = "CCP VERIFIED"

// Killmail is a single combat event as returned by ESI.
// Hash is not part of the ESI body; the fetcher sets it.
type Killmail struct {
	ID            int64      `json:"killmail_id"`
	Hash          string     `json:"-"`
	Time          time.Time  `json:"killmail_time"`
	SolarSystemID int64      `json:"solar_system_id"`
	Victim        Victim     `json:"victim"`
	Attackers     []Attacker `json:"attackers"`
}

// Victim is the destroyed ship and its fitting.
type Victim struct {
	ShipTypeID  int64  `json:"ship_type_id"`
	CharacterID int64  `json:"character_id,omitempty"`
	Items       []Item `json:"items,omitempty"`
}

// Attacker is one participant on the attacking side. NPCs and structures have no character id,
// and some attackers have no ship type.
type Attacker struct {
	CharacterID *int64 `json:"character_id,omitempty"`
	ShipTypeID  *int64 `json:"ship_type_id,omitempty"`
}

// IsPlayer reports whether the attacker is a player character.
func (a Attacker) IsPlayer() bool { return a.CharacterID != nil }

// Is reports whether the attacker is the given character.
func (a Attacker) Is(characterID int64) bool {
	return a.CharacterID != nil && *a.CharacterID == characterID
}

// Item is a fitted or carried item on the victim's ship.
type Item struct {
	TypeID            int64 `json:"item_type_id"`
	Flag              int   `json:"flag"`
	QuantityDestroyed int64 `json:"quantity_destroyed,omitempty"`
	QuantityDropped   int64 `json:"quantity_dropped,omitempty"`
}

// Quantity is the total number of units, destroyed or dropped.
func (i Item) Quantity() int64 { return i.QuantityDestroyed + i.QuantityDropped }

// KillRef identifies a killmail on a zKillboard page.
type KillRef struct {
	ID   int64
	Hash string
}

// Verified reports whether the ref carries a hash usable against ESI.
func (r KillRef) Verified() bool { return r.Hash != "" && r.Hash != UnverifiedHash }

// ScoredEvent is the scored view of a killmail from one perspective.
// It is created once per (kill id, perspective) and never mutated.
type ScoredEvent struct {
	KillID int64         `json:"kill_id"`
	Hash   string        `json:"hash,omitempty"`
	Time   time.Time     `json:"time"`
	Score  float64       `json:"score"`
	Window time.Duration `json:"window"`
}

// Int64 returns a pointer to v. Handy for building attackers.
func Int64(v int64) *int64 { return &v }
