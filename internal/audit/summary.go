package audit

// Health is the overall classification of a preserved object.
type Health string

const (
	HealthOK           Health = "ok"
	HealthNeedsCleanup Health = "needs-cleanup"
	HealthNeedsRepair  Health = "needs-repair"
	HealthIncomplete   Health = "incomplete"
)

// FileAudit pairs a file with its reconciliation. Result is nil for files
// without a reference.
type FileAudit struct {
	*FileFact
	Result *Reconciliation `json:"result,omitempty"`
}

// Category returns the outcome category the file is counted under. Exactly
// one category applies to every file.
func (fa FileAudit) Category() Category {
	switch {
	case fa.Result == nil:
		return CategoryNotIngested
	case fa.Result.ReferenceChanged(fa.FileFact):
		return CategoryReferenceNeedsUpdate
	case fa.Result.HasDeletions():
		return CategoryOKNeedsDeletion
	default:
		return CategoryFullyOK
	}
}

// Category is one of the four mutually exclusive per-file outcomes.
type Category string

const (
	CategoryNotIngested          Category = "not-ingested"
	CategoryFullyOK              Category = "fully-ok"
	CategoryOKNeedsDeletion      Category = "ok-needs-deletion"
	CategoryReferenceNeedsUpdate Category = "reference-needs-update"
)

// Summary holds the aggregate statistics of one object.
type Summary struct {
	TotalSize        int64 `json:"total_size"`
	TotalFiles       int   `json:"total_files"`
	FilesNotIngested int   `json:"files_not_ingested"`
	BytesNotIngested int64 `json:"bytes_not_ingested"`
	IngestedSize     int64 `json:"ingested_size"`

	FullyOK              int `json:"fully_ok"`
	OKNeedsDeletion      int `json:"ok_needs_deletion"`
	ReferenceNeedsUpdate int `json:"reference_needs_update"`

	PrimaryDeletionFiles int `json:"primary_deletion_files"`
	PrimaryDeletionKeys  int `json:"primary_deletion_keys"`
	ColdDeletionFiles    int `json:"cold_deletion_files"`
	ColdDeletionKeys     int `json:"cold_deletion_keys"`
	PrimaryMissingKeys   int `json:"primary_missing_keys"`
	ColdMissingKeys      int `json:"cold_missing_keys"`

	// FilesLost counts files whose authoritative key exists in no tier.
	FilesLost int `json:"files_lost"`

	Health Health `json:"health"`
}

// Partitioned reports whether the four outcome categories add up to
// TotalFiles.
func (s Summary) Partitioned() bool {
	return s.FilesNotIngested+s.FullyOK+s.OKNeedsDeletion+s.ReferenceNeedsUpdate == s.TotalFiles
}

// DeletionFiles returns the number of files with at least one deletion in tier.
func (s Summary) DeletionFiles(t Tier) int {
	if t == Primary {
		return s.PrimaryDeletionFiles
	}
	return s.ColdDeletionFiles
}

// DeletionKeys returns the number of keys to delete from tier.
func (s Summary) DeletionKeys(t Tier) int {
	if t == Primary {
		return s.PrimaryDeletionKeys
	}
	return s.ColdDeletionKeys
}

// MissingKeys returns the number of keys that must be added to tier.
func (s Summary) MissingKeys(t Tier) int {
	if t == Primary {
		return s.PrimaryMissingKeys
	}
	return s.ColdMissingKeys
}

// ObjectAudit is the reconciled view of one preserved object.
type ObjectAudit struct {
	Object  *PreservedObject `json:"object"`
	Files   []FileAudit      `json:"files"`
	Summary Summary          `json:"summary"`
}

// Summarize reconciles every file of obj and folds the results into object
// level statistics. It fails only for objects without files.
func Summarize(obj *PreservedObject) (*ObjectAudit, error) {
	if obj == nil || len(obj.Files) == 0 {
		return nil, ErrNoFiles
	}

	oa := &ObjectAudit{Object: obj, Files: make([]FileAudit, 0, len(obj.Files))}
	s := &oa.Summary

	for _, f := range obj.Files {
		fa := FileAudit{FileFact: f, Result: CheckKeys(f)}
		oa.Files = append(oa.Files, fa)

		s.TotalFiles++
		s.TotalSize += f.Size

		switch fa.Category() {
		case CategoryNotIngested:
			s.FilesNotIngested++
			s.BytesNotIngested += f.Size
			continue
		case CategoryReferenceNeedsUpdate:
			s.ReferenceNeedsUpdate++
		case CategoryOKNeedsDeletion:
			s.OKNeedsDeletion++
		case CategoryFullyOK:
			s.FullyOK++
		}

		r := fa.Result
		if n := len(r.KeysToDelete[Primary]); n > 0 {
			s.PrimaryDeletionFiles++
			s.PrimaryDeletionKeys += n
		}
		if n := len(r.KeysToDelete[Cold]); n > 0 {
			s.ColdDeletionFiles++
			s.ColdDeletionKeys += n
		}
		s.PrimaryMissingKeys += len(r.KeysMissing[Primary])
		s.ColdMissingKeys += len(r.KeysMissing[Cold])
		if r.Lost() {
			s.FilesLost++
		}
	}

	s.IngestedSize = s.TotalSize - s.BytesNotIngested
	s.Health = s.health()
	return oa, nil
}

func (s Summary) health() Health {
	switch {
	case s.FilesNotIngested > 0:
		return HealthIncomplete
	case s.ReferenceNeedsUpdate > 0 || s.PrimaryMissingKeys > 0 || s.ColdMissingKeys > 0:
		return HealthNeedsRepair
	case s.OKNeedsDeletion > 0:
		return HealthNeedsCleanup
	default:
		return HealthOK
	}
}
