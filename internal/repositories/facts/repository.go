// Package facts reads preserved objects, their files and the storage keys
// observed in each tier, and records tier observations and reference fixes.
package facts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/preservaudit/internal/audit"
)

// KeyObservation is one object seen in a storage tier, attributed to a bag
// and a path inside it through the object's metadata.
type KeyObservation struct {
	Tier         audit.Tier
	Key          string
	Bag          string
	BagPath      string
	Size         int64
	LastModified time.Time
}

type Repository interface {
	ListObjectNames(ctx context.Context, after string, limit int) ([]string, error)
	LoadObject(ctx context.Context, name string) (*audit.PreservedObject, error)
	UpsertObservation(ctx context.Context, obs KeyObservation) error
	UpdateReference(ctx context.Context, objectName, path, oldRef, newRef string) error
}
