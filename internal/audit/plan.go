package audit

import (
	"sort"
	"strings"
)

// ActionKind names what the executor must do.
type ActionKind string

const (
	ActionDelete          ActionKind = "delete"
	ActionAdd             ActionKind = "add"
	ActionUpdateReference ActionKind = "update-reference"
)

// ParseActionKind validates the text form of an action kind.
func ParseActionKind(s string) (ActionKind, bool) {
	switch k := ActionKind(s); k {
	case ActionDelete, ActionAdd, ActionUpdateReference:
		return k, true
	}
	return "", false
}

// Action is one idempotent remediation step.
type Action struct {
	ObjectName string     `json:"object_name"`
	FilePath   string     `json:"file_path"`
	Identifier string     `json:"identifier,omitempty"`
	Kind       ActionKind `json:"kind"`

	// Tier is the tier acted on by delete and add actions; zero for
	// reference updates.
	Tier Tier `json:"tier,omitempty"`
	// Key is the storage key deleted or added.
	Key string `json:"key,omitempty"`
	// SourceTier is where an add copies from.
	SourceTier Tier `json:"source_tier,omitempty"`

	OldReference string `json:"old_reference,omitempty"`
	NewReference string `json:"new_reference,omitempty"`
}

// NaturalKey identifies the action across repeated plan emissions:
// (object, kind, tier, path, key). Reference updates carry neither tier nor
// key, which reduces their identity to (object, path).
type NaturalKey struct {
	ObjectName string
	Kind       ActionKind
	Tier       Tier
	FilePath   string
	Key        string
}

// NaturalKey returns the identity of a.
func (a Action) NaturalKey() NaturalKey {
	return NaturalKey{
		ObjectName: a.ObjectName,
		Kind:       a.Kind,
		Tier:       a.Tier,
		FilePath:   a.FilePath,
		Key:        a.Key,
	}
}

// TierName returns the tier text used in the plan sink; empty for reference
// updates.
func (a Action) TierName() string {
	if !a.Tier.Valid() {
		return ""
	}
	return a.Tier.String()
}

func (k NaturalKey) less(o NaturalKey) bool {
	if c := strings.Compare(k.ObjectName, o.ObjectName); c != 0 {
		return c < 0
	}
	if k.Kind != o.Kind {
		return k.Kind < o.Kind
	}
	if k.Tier != o.Tier {
		return k.Tier < o.Tier
	}
	if c := strings.Compare(k.FilePath, o.FilePath); c != 0 {
		return c < 0
	}
	return k.Key < o.Key
}

// Plan converts the reconciliation results of oa into remediation actions.
// The result is de-duplicated by natural key and sorted, so emitting the plan
// twice for the same facts yields the same list.
//
// Files whose authoritative key exists in no tier get no add actions: there
// is nothing to copy from.
func Plan(oa *ObjectAudit) []Action {
	if oa == nil || oa.Object == nil {
		return nil
	}
	name := oa.Object.Name
	seen := make(map[NaturalKey]struct{})
	var out []Action

	emit := func(a Action) {
		nk := a.NaturalKey()
		if _, dup := seen[nk]; dup {
			return
		}
		seen[nk] = struct{}{}
		out = append(out, a)
	}

	for _, fa := range oa.Files {
		r := fa.Result
		if r == nil {
			continue
		}
		id := fa.Identifier
		if id == "" {
			id = oa.Object.Identifier
		}

		for _, t := range Tiers {
			for _, key := range r.KeysToDelete[t] {
				emit(Action{ObjectName: name, FilePath: fa.Path, Identifier: id, Kind: ActionDelete, Tier: t, Key: key})
			}
		}

		if !r.Lost() {
			for _, t := range Tiers {
				for _, key := range r.KeysMissing[t] {
					emit(Action{ObjectName: name, FilePath: fa.Path, Identifier: id, Kind: ActionAdd, Tier: t, Key: key, SourceTier: t.Other()})
				}
			}
		}

		if r.ReferenceChanged(fa.FileFact) {
			emit(Action{
				ObjectName:   name,
				FilePath:     fa.Path,
				Identifier:   id,
				Kind:         ActionUpdateReference,
				OldReference: fa.Reference,
				NewReference: r.ReferenceShouldBe,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].NaturalKey().less(out[j].NaturalKey())
	})
	return out
}
