package facts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/preservaudit/internal/audit"
	"github.com/dmitrijs2005/preservaudit/internal/common"
	"github.com/dmitrijs2005/preservaudit/internal/dbx"
)

// PostgresRepository implements the fact source over a dbx.DBTX
// (*sql.DB, *sql.Conn or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListObjectNames returns up to limit object names sorting strictly after
// after, in name order. An empty after starts from the beginning.
func (r *PostgresRepository) ListObjectNames(ctx context.Context, after string, limit int) ([]string, error) {
	query := `SELECT name FROM preserved_objects WHERE name > $1 ORDER BY name LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		result = append(result, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LoadObject assembles the facts for one object: its row, its preserved
// files in path order, and every storage key attributed to the object's bag.
//
// Returns common.ErrNotFound when the object does not exist. Any other
// failure is wrapped with common.ErrSourceUnavailable.
func (r *PostgresRepository) LoadObject(ctx context.Context, name string) (*audit.PreservedObject, error) {
	obj := &audit.PreservedObject{}

	query := `SELECT name, COALESCE(identifier, ''), diagnostic_message FROM preserved_objects WHERE name=$1`
	err := r.db.QueryRowContext(ctx, query, name).Scan(&obj.Name, &obj.Identifier, &obj.DiagnosticMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: object %s: %w", common.ErrSourceUnavailable, name, err)
	}

	byPath, err := r.loadFiles(ctx, obj)
	if err != nil {
		return nil, fmt.Errorf("%w: files of %s: %w", common.ErrSourceUnavailable, name, err)
	}

	if err := r.loadKeys(ctx, audit.BagName(name), byPath); err != nil {
		return nil, fmt.Errorf("%w: keys of %s: %w", common.ErrSourceUnavailable, name, err)
	}

	return obj, nil
}

func (r *PostgresRepository) loadFiles(ctx context.Context, obj *audit.PreservedObject) (map[string]*audit.FileFact, error) {
	query := `SELECT path, size, COALESCE(reference, ''), COALESCE(identifier, ''), stored_at
		FROM preserved_files WHERE object_name=$1 ORDER BY path`

	rows, err := r.db.QueryContext(ctx, query, obj.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byPath := make(map[string]*audit.FileFact)
	for rows.Next() {
		var (
			path, reference string
			size            int64
			identifier      string
			storedAt        sql.NullTime
		)
		if err := rows.Scan(&path, &size, &reference, &identifier, &storedAt); err != nil {
			return nil, err
		}
		f := audit.NewFileFact(path, size, reference)
		f.Identifier = identifier
		if storedAt.Valid {
			f.StoredAt = storedAt.Time.UTC()
		}
		obj.Files = append(obj.Files, f)
		byPath[path] = f
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return byPath, nil
}

func (r *PostgresRepository) loadKeys(ctx context.Context, bag string, byPath map[string]*audit.FileFact) error {
	query := `SELECT bag_path, key, tier FROM storage_keys WHERE bag=$1 ORDER BY bag_path, key, tier`

	rows, err := r.db.QueryContext(ctx, query, bag)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var path, key, tierName string
		if err := rows.Scan(&path, &key, &tierName); err != nil {
			return err
		}
		f, ok := byPath[path]
		if !ok {
			// stored under the bag but not a preserved file of it
			continue
		}
		tier, err := audit.ParseTier(tierName)
		if err != nil {
			return fmt.Errorf("key %s: %w", key, err)
		}
		if err := f.AddKey(key, tier); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
	}
	return rows.Err()
}

// UpsertObservation records that obs.Key exists in obs.Tier. Re-observing a
// key overwrites its attribution and size.
func (r *PostgresRepository) UpsertObservation(ctx context.Context, obs KeyObservation) error {
	query := `
		INSERT INTO storage_keys (tier, key, bag, bag_path, size, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tier, key)
		DO UPDATE SET
			bag = EXCLUDED.bag,
			bag_path = EXCLUDED.bag_path,
			size = EXCLUDED.size,
			last_modified = EXCLUDED.last_modified;
	`
	var lastModified sql.NullTime
	if !obs.LastModified.IsZero() {
		lastModified = sql.NullTime{Time: obs.LastModified.UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		obs.Tier.String(), obs.Key, obs.Bag, obs.BagPath, obs.Size, lastModified)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateReference replaces the reference of one preserved file. The update
// applies only while the stored reference still equals oldRef or already
// equals newRef; otherwise common.ErrNotFound is returned.
func (r *PostgresRepository) UpdateReference(ctx context.Context, objectName, path, oldRef, newRef string) error {
	query := `UPDATE preserved_files SET reference=$4
		WHERE object_name=$1 AND path=$2 AND (reference=$3 OR reference=$4)`

	result, err := r.db.ExecContext(ctx, query, objectName, path, oldRef, newRef)
	if err != nil {
		return fmt.Errorf("failed to update reference: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}
