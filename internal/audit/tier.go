package audit

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier identifies one of the two durable storage backends that must each
// hold a copy of every preserved file.
type Tier uint8

const (
	// Primary is the near-line object store.
	Primary Tier = iota + 1
	// Cold is the geographically separate archival store.
	Cold
)

// Tiers lists every valid tier in reporting order.
var Tiers = []Tier{Primary, Cold}

func (t Tier) String() string {
	switch t {
	case Primary:
		return "primary"
	case Cold:
		return "cold"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// Valid reports whether t is Primary or Cold.
func (t Tier) Valid() bool {
	return t == Primary || t == Cold
}

// Other returns the opposite tier.
func (t Tier) Other() Tier {
	if t == Primary {
		return Cold
	}
	return Primary
}

// ParseTier converts the text form of a tier ("primary" or "cold") back to a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary":
		return Primary, nil
	case "cold":
		return Cold, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTier, s)
}

// MarshalText implements encoding.TextMarshaler, so tiers can be used as JSON
// object keys.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTier, uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// TierSet is the set of tiers in which a storage key was observed.
type TierSet uint8

func bit(t Tier) TierSet {
	return 1 << (t - 1)
}

// Add returns s with t included. Adding a tier already present is a no-op.
func (s TierSet) Add(t Tier) TierSet {
	return s | bit(t)
}

// Has reports whether t belongs to the set.
func (s TierSet) Has(t Tier) bool {
	return t.Valid() && s&bit(t) != 0
}

// Len returns the number of tiers in the set.
func (s TierSet) Len() int {
	n := 0
	for _, t := range Tiers {
		if s.Has(t) {
			n++
		}
	}
	return n
}

// Full reports whether the set holds every tier.
func (s TierSet) Full() bool {
	return s.Len() == len(Tiers)
}

// Tiers returns the members of the set in reporting order.
func (s TierSet) Tiers() []Tier {
	out := make([]Tier, 0, len(Tiers))
	for _, t := range Tiers {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// MarshalJSON renders the set as a list of tier names.
func (s TierSet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(Tiers))
	for _, t := range s.Tiers() {
		names = append(names, t.String())
	}
	return json.Marshal(names)
}
