package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ProblemKind selects which problem files a tabular report lists.
type ProblemKind string

const (
	ProblemMissing    ProblemKind = "missing"
	ProblemDuplicates ProblemKind = "duplicates"
)

// ProblemRow is one line of the tabular problem report.
type ProblemRow struct {
	PrimaryFlag      bool
	ColdFlag         bool
	AuthoritativeKey string
	StoredAt         time.Time
	OldReference     string
	NewReference     string
	PrimaryKeys      []string
	ColdKeys         []string
	Identifier       string
}

var problemHeader = map[ProblemKind]string{
	ProblemMissing:    "Missing Primary\tMissing Cold",
	ProblemDuplicates: "Duplicate Primary\tDuplicate Cold",
}

// ProblemRows selects the files of oa that have the given kind of problem.
// Reference suffixes are rendered relative to refPrefix.
func ProblemRows(oa *ObjectAudit, kind ProblemKind, refPrefix string) []ProblemRow {
	var rows []ProblemRow
	for _, fa := range oa.Files {
		r := fa.Result
		if r == nil {
			continue
		}
		var p, c bool
		switch kind {
		case ProblemMissing:
			p, c = len(r.KeysMissing[Primary]) > 0, len(r.KeysMissing[Cold]) > 0
		case ProblemDuplicates:
			p, c = len(r.KeysToDelete[Primary]) > 0, len(r.KeysToDelete[Cold]) > 0
		}
		if !p && !c {
			continue
		}
		id := fa.Identifier
		if id == "" {
			id = oa.Object.Identifier
		}
		rows = append(rows, ProblemRow{
			PrimaryFlag:      p,
			ColdFlag:         c,
			AuthoritativeKey: r.AuthoritativeKey,
			StoredAt:         fa.StoredAt,
			OldReference:     ReferenceSuffix(fa.Reference, refPrefix),
			NewReference:     ReferenceSuffix(r.ReferenceShouldBe, refPrefix),
			PrimaryKeys:      fa.KeysIn(Primary),
			ColdKeys:         fa.KeysIn(Cold),
			Identifier:       id,
		})
	}
	return rows
}

// WriteProblemReport writes rows as tab separated lines with a header and a
// trailing row count.
func WriteProblemReport(w io.Writer, kind ProblemKind, rows []ProblemRow) error {
	header, ok := problemHeader[kind]
	if !ok {
		return fmt.Errorf("unknown problem kind %q", kind)
	}
	if _, err := fmt.Fprintf(w, "%s\tKey\tStored At\tOld Reference\tNew Reference\tPrimary Keys\tCold Keys\tIdentifier\n", header); err != nil {
		return err
	}
	for _, r := range rows {
		stored := ""
		if !r.StoredAt.IsZero() {
			stored = r.StoredAt.UTC().Format(time.RFC3339)
		}
		_, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			flag(r.PrimaryFlag), flag(r.ColdFlag), r.AuthoritativeKey, stored,
			r.OldReference, r.NewReference,
			strings.Join(r.PrimaryKeys, ","), strings.Join(r.ColdKeys, ","), r.Identifier)
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s\n%d rows\n", strings.Repeat("-", 76), len(rows))
	return err
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// WriteDocument writes oa as an indented JSON document.
func WriteDocument(w io.Writer, oa *ObjectAudit) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(oa)
}
