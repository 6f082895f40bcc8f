package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/preservaudit/internal/audit"
	"github.com/dmitrijs2005/preservaudit/internal/common"
	"github.com/dmitrijs2005/preservaudit/internal/config"
	"github.com/dmitrijs2005/preservaudit/internal/dbx"
	"github.com/dmitrijs2005/preservaudit/internal/logging"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/actions"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/facts"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/repomanager"
	"github.com/dmitrijs2005/preservaudit/internal/repositories/runs"
	"github.com/dmitrijs2005/preservaudit/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const refPrefix = "https://s3.example/primary/"

// fakeRepos is an in-memory fact store, plan sink and run log.
type fakeRepos struct {
	mu           sync.Mutex
	objects      map[string]*audit.PreservedObject
	observations []facts.KeyObservation
	upserts      []audit.Action
	started      []uuid.UUID
	finished     []*runs.Run
	migrateErr   error
}

func (r *fakeRepos) RunMigrations(context.Context, *sql.DB) error { return r.migrateErr }
func (r *fakeRepos) Facts(dbx.DBTX) facts.Repository           { return r }
func (r *fakeRepos) Actions(dbx.DBTX) actions.Repository       { return r }
func (r *fakeRepos) Runs(dbx.DBTX) runs.Repository             { return r }

func (r *fakeRepos) ListObjectNames(_ context.Context, after string, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for n := range r.objects {
		if n > after {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	if len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (r *fakeRepos) LoadObject(_ context.Context, name string) (*audit.PreservedObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[name]
	if !ok {
		return nil, common.ErrNotFound
	}
	return obj, nil
}

func (r *fakeRepos) UpsertObservation(_ context.Context, obs facts.KeyObservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observations = append(r.observations, obs)
	return nil
}

func (r *fakeRepos) UpdateReference(context.Context, string, string, string, string) error {
	return nil
}

func (r *fakeRepos) Upsert(_ context.Context, _ uuid.UUID, a audit.Action) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, a)
	return true, nil
}

func (r *fakeRepos) ListPending(context.Context, audit.ActionKind, int64, int) ([]actions.PendingAction, error) {
	return nil, nil
}

func (r *fakeRepos) MarkCompleted(context.Context, int64, time.Time) error { return nil }

func (r *fakeRepos) Supersede(context.Context, string, []audit.NaturalKey, time.Time) (int, error) {
	return 0, nil
}

func (r *fakeRepos) Start(_ context.Context, id uuid.UUID, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
	return nil
}

func (r *fakeRepos) Finish(_ context.Context, run *runs.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, run)
	return nil
}

// fakeStore serves a fixed listing per tier.
type fakeStore struct {
	keys map[audit.Tier][]string
	meta map[string]map[string]string
}

func (s *fakeStore) Walk(_ context.Context, tier audit.Tier, fn func(storage.Object) error) error {
	for _, k := range s.keys[tier] {
		if err := fn(storage.Object{Key: k, Size: 1}); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) Metadata(_ context.Context, _ audit.Tier, key string) (map[string]string, error) {
	m, ok := s.meta[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return m, nil
}

func (s *fakeStore) Exists(context.Context, audit.Tier, string) (bool, error) { return true, nil }
func (s *fakeStore) Copy(context.Context, string, audit.Tier, audit.Tier) error {
	return nil
}
func (s *fakeStore) Delete(context.Context, audit.Tier, string) error { return nil }

// object builds a one-file object whose key k1 replicated to the given tiers.
func object(t *testing.T, name string, tiers ...audit.Tier) *audit.PreservedObject {
	t.Helper()
	f := audit.NewFileFact("data/f.txt", 10, refPrefix+"k1")
	for _, tier := range tiers {
		require.NoError(t, f.AddKey("k1", tier))
	}
	return &audit.PreservedObject{Name: name, Identifier: "college.edu/" + name, Files: []*audit.FileFact{f}}
}

func newTestApp(t *testing.T, repos *fakeRepos, mutate func(*config.Config)) (*App, *bytes.Buffer) {
	t.Helper()
	a, out, _ := newTestAppWithMock(t, repos, mutate)
	return a, out
}

func newTestAppWithMock(t *testing.T, repos *fakeRepos, mutate func(*config.Config)) (*App, *bytes.Buffer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c := &config.Config{}
	c.LoadDefaults()
	c.RetryMaxElapsed = 50 * time.Millisecond
	c.Workers = 2
	if mutate != nil {
		mutate(c)
	}

	a := newApp(c, logging.Nop{}, db, repos)
	out := &bytes.Buffer{}
	a.out = out
	return a, out, mock
}

func TestNewApp_OpenDBError(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(context.Context, string, int) (*sql.DB, error) { return nil, errors.New("refused") }

	c := &config.Config{}
	c.LoadDefaults()

	_, err := NewApp(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db init error")
}

func TestNewApp_MigrationErrorClosesDB(t *testing.T) {
	origOpen, origRepos, origLog := openDB, newRepositoryManager, logOutput
	t.Cleanup(func() { openDB, newRepositoryManager, logOutput = origOpen, origRepos, origLog })

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	openDB = func(context.Context, string, int) (*sql.DB, error) { return db, nil }
	newRepositoryManager = func() repomanager.RepositoryManager {
		return &fakeRepos{migrateErr: errors.New("bad migration")}
	}
	logOutput = &bytes.Buffer{}

	c := &config.Config{}
	c.LoadDefaults()

	_, err = NewApp(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad migration")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewApp_Success(t *testing.T) {
	origOpen, origRepos, origLog := openDB, newRepositoryManager, logOutput
	t.Cleanup(func() { openDB, newRepositoryManager, logOutput = origOpen, origRepos, origLog })

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var gotDSN string
	var gotWorkers int
	openDB = func(_ context.Context, dsn string, workers int) (*sql.DB, error) {
		gotDSN, gotWorkers = dsn, workers
		return db, nil
	}
	newRepositoryManager = func() repomanager.RepositoryManager { return &fakeRepos{} }
	logOutput = &bytes.Buffer{}

	c := &config.Config{}
	c.LoadDefaults()

	a, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, c.DatabaseDSN, gotDSN)
	assert.Equal(t, c.Workers, gotWorkers)
	assert.NotNil(t, a.metrics)
}

func TestAudit_AuditModePersistsPlanAndPrintsReport(t *testing.T) {
	repos := &fakeRepos{objects: map[string]*audit.PreservedObject{
		"a.tar": object(t, "a.tar", audit.Primary, audit.Cold),
		"b.tar": object(t, "b.tar", audit.Primary),
	}}
	a, out, mock := newTestAppWithMock(t, repos, nil)
	// one plan transaction per object
	mock.MatchExpectationsInOrder(false)
	for range 2 {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}

	require.NoError(t, a.Audit(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, repos.upserts, 1)
	assert.Equal(t, "b.tar", repos.upserts[0].ObjectName)
	assert.Equal(t, audit.ActionAdd, repos.upserts[0].Kind)
	require.Len(t, repos.started, 1)
	require.Len(t, repos.finished, 1)
	assert.Equal(t, 2, repos.finished[0].Objects)

	var report map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.EqualValues(t, 2, report["objects"])
	assert.EqualValues(t, 1, report["actions_created"])
}

func TestAudit_DryRunWritesNothing(t *testing.T) {
	repos := &fakeRepos{objects: map[string]*audit.PreservedObject{
		"b.tar": object(t, "b.tar", audit.Primary),
	}}
	a, _ := newTestApp(t, repos, func(c *config.Config) { c.DryRun = true })

	require.NoError(t, a.Audit(context.Background(), nil))
	assert.Empty(t, repos.upserts)
	assert.Empty(t, repos.started)
}

func TestAudit_JSONModeToStdout(t *testing.T) {
	repos := &fakeRepos{objects: map[string]*audit.PreservedObject{
		"a.tar": object(t, "a.tar", audit.Primary, audit.Cold),
	}}
	a, out := newTestApp(t, repos, func(c *config.Config) { c.Mode = config.ModeJSON })

	require.NoError(t, a.Audit(context.Background(), []string{"a.tar"}))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, "a.tar", doc["object"].(map[string]any)["name"])
	assert.Empty(t, repos.upserts, "report modes never write the plan")
	assert.Empty(t, repos.started)
}

func TestAudit_JSONModeToDirectory(t *testing.T) {
	repos := &fakeRepos{objects: map[string]*audit.PreservedObject{
		"a.tar": object(t, "a.tar", audit.Primary, audit.Cold),
		"b.tar": object(t, "b.tar", audit.Cold),
	}}
	dir := filepath.Join(t.TempDir(), "docs")
	a, out := newTestApp(t, repos, func(c *config.Config) {
		c.Mode = config.ModeJSON
		c.OutputDir = dir
	})

	require.NoError(t, a.Audit(context.Background(), nil))
	assert.Empty(t, out.String())

	for _, name := range []string{"a.tar", "b.tar"} {
		b, err := os.ReadFile(filepath.Join(dir, name+".json"))
		require.NoError(t, err)
		assert.Contains(t, string(b), `"name": "`+name+`"`)
	}
}

func TestAudit_MissingReportIsOrderedByObject(t *testing.T) {
	repos := &fakeRepos{objects: map[string]*audit.PreservedObject{
		"c.tar": object(t, "c.tar", audit.Cold),
		"a.tar": object(t, "a.tar", audit.Primary),
		"b.tar": object(t, "b.tar", audit.Primary, audit.Cold),
	}}
	a, out := newTestApp(t, repos, func(c *config.Config) {
		c.Mode = config.ModeMissing
		c.ReferencePrefix = refPrefix
		c.Workers = 3
	})

	require.NoError(t, a.Audit(context.Background(), nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "Missing Primary\tMissing Cold\t"))
	assert.True(t, strings.HasPrefix(lines[1], "0\t1\tk1\t"))
	assert.True(t, strings.HasSuffix(lines[1], "college.edu/a.tar"))
	assert.True(t, strings.HasPrefix(lines[2], "1\t0\tk1\t"))
	assert.True(t, strings.HasSuffix(lines[2], "college.edu/c.tar"))
	assert.Equal(t, "2 rows", lines[4])
}

func TestAudit_DuplicatesReport(t *testing.T) {
	f := audit.NewFileFact("data/f.txt", 10, refPrefix+"k1")
	require.NoError(t, f.AddKey("k1", audit.Primary))
	require.NoError(t, f.AddKey("k1", audit.Cold))
	require.NoError(t, f.AddKey("stale", audit.Primary))
	repos := &fakeRepos{objects: map[string]*audit.PreservedObject{
		"a.tar": {Name: "a.tar", Files: []*audit.FileFact{f}},
	}}
	a, out := newTestApp(t, repos, func(c *config.Config) { c.Mode = config.ModeDuplicates })

	require.NoError(t, a.Audit(context.Background(), nil))

	assert.True(t, strings.HasPrefix(out.String(), "Duplicate Primary\tDuplicate Cold\t"))
	assert.Contains(t, out.String(), "\n1\t0\tk1\t")
	assert.True(t, strings.HasSuffix(out.String(), "1 rows\n"))
}

func TestAudit_ObjectFailuresReturnError(t *testing.T) {
	repos := &fakeRepos{objects: map[string]*audit.PreservedObject{
		"a.tar": object(t, "a.tar", audit.Primary, audit.Cold),
	}}
	a, _ := newTestApp(t, repos, func(c *config.Config) { c.Mode = config.ModeJSON })

	err := a.Audit(context.Background(), []string{"a.tar", "absent.tar"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Contains(t, err.Error(), "1 objects failed")
}

func TestAudit_UnknownMode(t *testing.T) {
	a, _ := newTestApp(t, &fakeRepos{}, func(c *config.Config) { c.Mode = "sideways" })

	err := a.Audit(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sideways")
}

func TestScanTiers(t *testing.T) {
	tests := []struct {
		in      string
		want    []audit.Tier
		wantErr bool
	}{
		{in: "all", want: []audit.Tier{audit.Primary, audit.Cold}},
		{in: "", want: []audit.Tier{audit.Primary, audit.Cold}},
		{in: "Primary", want: []audit.Tier{audit.Primary}},
		{in: "cold", want: []audit.Tier{audit.Cold}},
		{in: "glacier", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := scanTiers(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, audit.ErrInvalidTier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScan_RecordsObservations(t *testing.T) {
	orig := newStorage
	t.Cleanup(func() { newStorage = orig })

	var gotOpts storage.Options
	newStorage = func(_ context.Context, opts storage.Options) (Store, error) {
		gotOpts = opts
		return &fakeStore{
			keys: map[audit.Tier][]string{
				audit.Primary: {"k1", "orphan"},
				audit.Cold:    {"k1"},
			},
			meta: map[string]map[string]string{
				"k1":     {storage.MetaBag: "a", storage.MetaBagPath: "data/f.txt"},
				"orphan": {},
			},
		}, nil
	}

	repos := &fakeRepos{}
	a, _ := newTestApp(t, repos, nil)

	require.NoError(t, a.Scan(context.Background()))
	assert.Equal(t, a.config.PrimaryBucket, gotOpts.PrimaryBucket)
	assert.Equal(t, a.config.ColdBucket, gotOpts.ColdBucket)
	assert.Len(t, repos.observations, 2)
}

func TestScan_StorageInitError(t *testing.T) {
	orig := newStorage
	t.Cleanup(func() { newStorage = orig })
	newStorage = func(context.Context, storage.Options) (Store, error) { return nil, errors.New("no creds") }

	a, _ := newTestApp(t, &fakeRepos{}, nil)

	err := a.Scan(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage init error")
}

func TestCleanup_NothingPending(t *testing.T) {
	orig := newStorage
	t.Cleanup(func() { newStorage = orig })
	newStorage = func(context.Context, storage.Options) (Store, error) { return &fakeStore{}, nil }

	a, _ := newTestApp(t, &fakeRepos{}, nil)

	require.NoError(t, a.Cleanup(context.Background()))
}

func TestRun_ReturnsCommandErrorAndClosesDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	c := &config.Config{}
	c.LoadDefaults()
	a := newApp(c, logging.Nop{}, db, &fakeRepos{})

	boom := errors.New("boom")
	err = a.Run(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ServesMetricsWhileCommandRuns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	c := &config.Config{}
	c.LoadDefaults()
	c.MetricsAddr = "127.0.0.1:0"
	a := newApp(c, logging.Nop{}, db, &fakeRepos{})

	ran := false
	err = a.Run(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	require.NoError(t, mock.ExpectationsWereMet())
}
