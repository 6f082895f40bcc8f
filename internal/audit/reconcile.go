package audit

import "slices"

// Outcome is the terminal classification reached by CheckKeys.
type Outcome uint8

const (
	// Unreplicated means no key was found in every tier.
	Unreplicated Outcome = iota
	// FullyReplicated means the key named by the reference is present in every tier.
	FullyReplicated
	// ReplicatedUnderNewKey means another key is present in every tier and the
	// reference is stale.
	ReplicatedUnderNewKey
)

func (o Outcome) String() string {
	switch o {
	case FullyReplicated:
		return "fully-replicated"
	case ReplicatedUnderNewKey:
		return "replicated-under-new-key"
	default:
		return "unreplicated"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Reconciliation is the fully determined remediation set for one file.
type Reconciliation struct {
	Outcome Outcome `json:"outcome"`
	// AuthoritativeKey is empty when Outcome is Unreplicated.
	AuthoritativeKey  string `json:"authoritative_key,omitempty"`
	ReferenceShouldBe string `json:"reference_should_be"`
	// KeysToDelete lists, per tier, keys that exist there but are not the
	// authoritative one.
	KeysToDelete map[Tier][]string `json:"keys_to_delete"`
	// KeysMissing lists, per tier, the authoritative key when it is absent
	// from that tier.
	KeysMissing map[Tier][]string `json:"keys_missing"`

	lost bool
}

// CheckKeys reconciles the keys observed for f against its reference. It
// returns nil when f has no reference: there is nothing to reconcile against.
//
// Rules are applied in order and the first match wins:
//
//  1. the key named by the reference's trailing segment is present in every
//     tier: it is authoritative and the reference stands;
//  2. some other key is present in every tier: it is authoritative and the
//     reference's trailing segment is replaced by it;
//  3. otherwise the reference stands and no key is authoritative.
//
// Every observed key is then classified against the trailing segment of the
// corrected reference. CheckKeys never modifies f.
func CheckKeys(f *FileFact) *Reconciliation {
	if f == nil || !f.HasReference() {
		return nil
	}

	r := &Reconciliation{
		Outcome:           Unreplicated,
		ReferenceShouldBe: f.Reference,
		KeysToDelete:      make(map[Tier][]string),
		KeysMissing:       make(map[Tier][]string),
	}

	current := trailingSegment(f.Reference)
	if f.Keys[current].Full() {
		r.Outcome = FullyReplicated
		r.AuthoritativeKey = current
	} else if key, ok := replicatedKey(f.Keys); ok {
		r.Outcome = ReplicatedUnderNewKey
		r.AuthoritativeKey = key
		r.ReferenceShouldBe = replaceTrailingSegment(f.Reference, key)
	}

	want := trailingSegment(r.ReferenceShouldBe)
	for key, seen := range f.Keys {
		if key == want {
			continue
		}
		for _, t := range seen.Tiers() {
			r.KeysToDelete[t] = append(r.KeysToDelete[t], key)
		}
	}

	seen := f.Keys[want]
	for _, t := range Tiers {
		if !seen.Has(t) {
			r.KeysMissing[t] = append(r.KeysMissing[t], want)
		}
	}
	r.lost = seen.Len() == 0

	for _, t := range Tiers {
		slices.Sort(r.KeysToDelete[t])
	}
	return r
}

// replicatedKey returns the smallest key present in every tier.
func replicatedKey(keys map[string]TierSet) (string, bool) {
	var found string
	ok := false
	for k, s := range keys {
		if !s.Full() {
			continue
		}
		if !ok || k < found {
			found, ok = k, true
		}
	}
	return found, ok
}

// ReferenceChanged reports whether the recorded reference must be updated.
func (r *Reconciliation) ReferenceChanged(f *FileFact) bool {
	return r != nil && r.ReferenceShouldBe != f.Reference
}

// HasDeletions reports whether any tier holds keys to delete.
func (r *Reconciliation) HasDeletions() bool {
	if r == nil {
		return false
	}
	for _, keys := range r.KeysToDelete {
		if len(keys) > 0 {
			return true
		}
	}
	return false
}

// HasMissing reports whether the authoritative key is absent from any tier.
func (r *Reconciliation) HasMissing() bool {
	if r == nil {
		return false
	}
	for _, keys := range r.KeysMissing {
		if len(keys) > 0 {
			return true
		}
	}
	return false
}

// Lost reports that the key named by the corrected reference was observed in
// no tier at all, so there is no copy to replicate from.
func (r *Reconciliation) Lost() bool {
	return r != nil && r.lost
}
