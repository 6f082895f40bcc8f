package audit

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	ErrEmptyKey    = errors.New("empty storage key")
	ErrInvalidTier = errors.New("invalid tier")
	ErrNoFiles     = errors.New("object has no preserved files")
)

// PreservedObject is one unit of ingest (one submitted bag) together with the
// facts known about each of its preserved files.
type PreservedObject struct {
	// Name is the external identifier of the ingested unit, e.g.
	// "college.edu.name_of_bag.tar".
	Name string `json:"name"`
	// Identifier is the logical identifier; empty while pending assignment.
	Identifier string `json:"identifier,omitempty"`
	// DiagnosticMessage carries the note from the original ingest-failure
	// classification. Informational only.
	DiagnosticMessage string `json:"diagnostic_message,omitempty"`
	// Files holds one fact per preserved file, in source order. Documents
	// render them through ObjectAudit.Files instead.
	Files []*FileFact `json:"-"`
}

// FileFact is what the fact source knows about one preserved file.
type FileFact struct {
	// Path is relative to the unpacked bag and unique within its object.
	Path string `json:"path"`
	// Size is used for aggregate statistics only.
	Size int64 `json:"size"`
	// Reference is the URL recorded in the system of record. Empty means the
	// file was never registered downstream.
	Reference string `json:"reference,omitempty"`
	// Identifier is the logical identifier of the file, if known.
	Identifier string `json:"identifier,omitempty"`
	// StoredAt is the storage timestamp recorded at ingest, if known.
	StoredAt time.Time `json:"stored_at,omitzero"`
	// Keys maps every storage key observed for this file to the tiers it was
	// seen in.
	Keys map[string]TierSet `json:"keys,omitempty"`
}

// NewFileFact returns a fact with an initialized key map.
func NewFileFact(path string, size int64, reference string) *FileFact {
	return &FileFact{
		Path:      path,
		Size:      size,
		Reference: reference,
		Keys:      make(map[string]TierSet),
	}
}

// AddKey records that key was observed in tier. Repeated observations of the
// same (key, tier) pair are no-ops.
func (f *FileFact) AddKey(key string, tier Tier) error {
	if key == "" {
		return ErrEmptyKey
	}
	if !tier.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidTier, uint8(tier))
	}
	if f.Keys == nil {
		f.Keys = make(map[string]TierSet)
	}
	f.Keys[key] = f.Keys[key].Add(tier)
	return nil
}

// HasReference reports whether the file was registered downstream.
func (f *FileFact) HasReference() bool {
	return f.Reference != ""
}

// KeysIn returns the keys observed in tier, sorted.
func (f *FileFact) KeysIn(tier Tier) []string {
	var out []string
	for k, s := range f.Keys {
		if s.Has(tier) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// BagName strips a trailing ".tar" from an object name. Storage metadata
// records the bag name without the extension.
func BagName(objectName string) string {
	return strings.TrimSuffix(objectName, ".tar")
}

// trailingSegment returns the last path component of a reference URL. A
// reference without any '/' is its own trailing segment.
func trailingSegment(ref string) string {
	return ref[strings.LastIndexByte(ref, '/')+1:]
}

// replaceTrailingSegment swaps the last path component of ref for key.
func replaceTrailingSegment(ref, key string) string {
	return ref[:strings.LastIndexByte(ref, '/')+1] + key
}

// ReferenceSuffix returns ref with prefix removed, the form used by tabular
// reports. When ref does not start with prefix the trailing segment is used.
func ReferenceSuffix(ref, prefix string) string {
	if ref == "" {
		return ""
	}
	if prefix != "" && strings.HasPrefix(ref, prefix) {
		return strings.TrimPrefix(ref, prefix)
	}
	return trailingSegment(ref)
}
