// Package fakeupstream generates a deterministic kill history and serves it
// over the zKillboard and ESI HTTP shapes, for tests and local runs.
package fakeupstream

import (
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"gopkg.in/yaml.v3"

	"github.com/okian/killpoints/internal/domain/model"
	"github.com/okian/killpoints/internal/domain/rules"
)

const (
	firstCharacterID = 90_000_000
	firstShipTypeID  = 1_000
	firstModuleID    = 20_000
	firstKillID      = 100_000_000
	firstSystemID    = 31_000_001 // outside known space; never an excluded trade hub

	// Dogma attribute ids served for types.
	attrLowSlots  = 12
	attrMidSlots  = 13
	attrHighSlots = 14
	attrMetaLevel = 633

	// Inventory flags of the first low, mid and high slot.
	flagLow  = 11
	flagMid  = 19
	flagHigh = 27
)

// Config sizes the generated universe.
type Config struct {
	Seed              uint64
	Characters        int
	KillsPerCharacter int
	ShipTypes         int
	ModuleTypes       int
	// UnlistedShips are ship types that get no rule weights.
	UnlistedShips int
	// Span is how far back kills are spread from Now.
	Span time.Duration
	Now  time.Time
}

func (c *Config) defaults() {
	if c.Characters <= 0 {
		c.Characters = 5
	}
	if c.KillsPerCharacter <= 0 {
		c.KillsPerCharacter = 20
	}
	if c.ShipTypes <= 0 {
		c.ShipTypes = 12
	}
	if c.ModuleTypes <= 0 {
		c.ModuleTypes = 30
	}
	if c.Span <= 0 {
		c.Span = 60 * 24 * time.Hour
	}
	if c.Now.IsZero() {
		c.Now = time.Now().UTC()
	}
}

// Character is a generated pilot.
type Character struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Type is a generated ship or module type.
type Type struct {
	ID        int64
	Name      string
	Slots     [3]int   // low, mid, high; zero for modules
	MetaLevel *float64 // nil for ships and meta-less modules
}

// Universe is a generated world. It is read only after Generate.
type Universe struct {
	Characters []Character
	Types      map[int64]Type
	Killmails  map[int64]model.Killmail
	Hashes     map[int64]string

	kills   map[int64][]int64 // character -> kill ids, newest first
	weights map[rules.Category]map[int64]float64
	ships   []int64
	modules []int64
}

// Generate builds a universe. The same config always yields the same universe.
func Generate(cfg Config) *Universe {
	cfg.defaults()
	f := gofakeit.New(cfg.Seed)
	u := &Universe{
		Types:     map[int64]Type{},
		Killmails: map[int64]model.Killmail{},
		Hashes:    map[int64]string{},
		kills:     map[int64][]int64{},
		weights:   map[rules.Category]map[int64]float64{},
	}
	for _, c := range rules.Categories() {
		u.weights[c] = map[int64]float64{}
	}

	for i := range cfg.Characters {
		u.Characters = append(u.Characters, Character{ID: int64(firstCharacterID + i), Name: f.Name()})
	}
	for i := range cfg.ShipTypes + cfg.UnlistedShips {
		id := int64(firstShipTypeID + i)
		u.Types[id] = Type{
			ID:    id,
			Name:  fmt.Sprintf("%s %s", titled(f.Adjective()), titled(f.Animal())),
			Slots: [3]int{f.Number(1, 6), f.Number(1, 6), f.Number(1, 8)},
		}
		u.ships = append(u.ships, id)
		if i >= cfg.ShipTypes {
			continue
		}
		base := round2(f.Float64Range(1, 100))
		u.weights[rules.Base][id] = base
		u.weights[rules.RarityAdjusted][id] = round2(base * f.Float64Range(0.8, 1.5))
		u.weights[rules.RiskAdjusted][id] = round2(base * f.Float64Range(1, 1.5))
		u.weights[rules.TimeAdjusted][id] = round2(f.Float64Range(5, 120))
	}
	for i := range cfg.ModuleTypes {
		id := int64(firstModuleID + i)
		t := Type{ID: id, Name: fmt.Sprintf("%s %s", titled(f.Adjective()), titled(f.Noun()))}
		if f.Number(0, 9) > 0 {
			level := float64(f.Number(0, 10))
			t.MetaLevel = &level
		}
		u.Types[id] = t
		u.modules = append(u.modules, id)
	}

	killID := int64(firstKillID)
	for _, ch := range u.Characters {
		for made := 0; made < cfg.KillsPerCharacter; {
			start := f.DateRange(cfg.Now.Add(-cfg.Span), cfg.Now)
			burst := min(f.Number(1, 3), cfg.KillsPerCharacter-made)
			for j := range burst {
				at := start.Add(time.Duration(j*f.Number(1, 4)) * time.Minute)
				if at.After(cfg.Now) {
					at = cfg.Now
				}
				km := u.killmail(f, killID, at.UTC().Truncate(time.Second), ch.ID)
				u.Killmails[killID] = km
				u.Hashes[killID] = strings.ToLower(f.LetterN(40))
				for _, a := range km.Attackers {
					if a.CharacterID != nil {
						u.kills[*a.CharacterID] = append(u.kills[*a.CharacterID], killID)
					}
				}
				killID++
				made++
			}
		}
	}
	for id, ids := range u.kills {
		slices.SortFunc(ids, func(a, b int64) int {
			ta, tb := u.Killmails[a].Time, u.Killmails[b].Time
			if c := tb.Compare(ta); c != 0 {
				return c
			}
			switch {
			case a > b:
				return -1
			case a < b:
				return 1
			}
			return 0
		})
		u.kills[id] = slices.Compact(ids)
	}
	return u
}

func (u *Universe) killmail(f *gofakeit.Faker, id int64, at time.Time, attacker int64) model.Killmail {
	victimShip := u.ships[f.Number(0, len(u.ships)-1)]
	km := model.Killmail{
		ID:            id,
		Time:          at,
		SolarSystemID: int64(firstSystemID + f.Number(0, 3000)),
		Victim: model.Victim{
			ShipTypeID:  victimShip,
			CharacterID: int64(firstCharacterID + 10_000 + f.Number(0, 1000)),
		},
		Attackers: []model.Attacker{{
			CharacterID: model.Int64(attacker),
			ShipTypeID:  model.Int64(u.ships[f.Number(0, len(u.ships)-1)]),
		}},
	}

	for range f.Number(0, 4) {
		other := u.Characters[f.Number(0, len(u.Characters)-1)].ID
		if other == attacker {
			continue
		}
		km.Attackers = append(km.Attackers, model.Attacker{
			CharacterID: model.Int64(other),
			ShipTypeID:  model.Int64(u.ships[f.Number(0, len(u.ships)-1)]),
		})
	}
	if f.Bool() {
		// NPC without a character id.
		km.Attackers = append(km.Attackers, model.Attacker{ShipTypeID: model.Int64(u.ships[0])})
	}

	slots := u.Types[victimShip].Slots
	for i, first := range []int{flagLow, flagMid, flagHigh} {
		for s := range slots[i] {
			if f.Number(0, 4) == 0 {
				continue // empty slot
			}
			item := model.Item{TypeID: u.modules[f.Number(0, len(u.modules)-1)], Flag: first + s}
			if f.Bool() {
				item.QuantityDestroyed = 1
			} else {
				item.QuantityDropped = 1
			}
			km.Victim.Items = append(km.Victim.Items, item)
		}
	}
	// A charge stack in a high slot; not a fitted module.
	km.Victim.Items = append(km.Victim.Items, model.Item{
		TypeID:            u.modules[f.Number(0, len(u.modules)-1)],
		Flag:              flagHigh,
		QuantityDestroyed: int64(f.Number(50, 500)),
	})
	return km
}

// KillsOf returns the kill ids a character took part in, newest first.
func (u *Universe) KillsOf(characterID int64) []int64 {
	return slices.Clone(u.kills[characterID])
}

// Weights returns a copy of the rule weights of every listed ship.
func (u *Universe) Weights() map[rules.Category]map[int64]float64 {
	out := make(map[rules.Category]map[int64]float64, len(u.weights))
	for c, m := range u.weights {
		out[c] = make(map[int64]float64, len(m))
		for id, w := range m {
			out[c][id] = w
		}
	}
	return out
}

// WriteRules writes the weights as a rule file for season.
func (u *Universe) WriteRules(path string, season int) error {
	categories := map[string]map[int64]float64{}
	for c, m := range u.weights {
		categories[c.String()] = m
	}
	doc := map[string]map[int]map[string]map[int64]float64{
		"seasons": {season: categories},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Character returns the character with the given name.
func (u *Universe) Character(name string) (Character, bool) {
	for _, c := range u.Characters {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Character{}, false
}

func titled(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
