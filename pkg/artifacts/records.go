package artifacts

import (
	"strconv"
	"time"

	"roiquant/internal/models"
	"roiquant/pkg/cohort"
	"roiquant/pkg/volume"
)

// SubjectRecord is the stored form of models.SubjectRecord
type SubjectRecord struct {
	MRID    string                  `json:"MRID"`
	Age     float64                 `json:"Age"`
	Sex     string                  `json:"Sex"`
	ICV     models.Float            `json:"ICV"`
	WMLS    models.Float            `json:"WMLS"`
	Volumes map[string]models.Float `json:"Volumes"`
}

// FromSubject converts a subject record
func FromSubject(s *models.SubjectRecord) SubjectRecord {
	return SubjectRecord{
		MRID:    s.MRID,
		Age:     s.Age,
		Sex:     s.Sex,
		ICV:     models.Float(s.ICV),
		WMLS:    models.Float(s.WMLS),
		Volumes: models.Floats(s.Volumes),
	}
}

// ReferenceRow is the stored form of cohort.Row
type ReferenceRow struct {
	PTID      string                  `json:"PTID"`
	Age       float64                 `json:"Age"`
	Sex       string                  `json:"Sex"`
	Diagnosis string                  `json:"Diagnosis"`
	Date      string                  `json:"Date"`
	ICV       models.Float            `json:"ICV"`
	Text      map[string]string       `json:"Text,omitempty"`
	Values    map[string]models.Float `json:"Values"`
}

// ReferenceTable is the stored form of cohort.Table
type ReferenceTable struct {
	Columns []string       `json:"columns"`
	Rows    []ReferenceRow `json:"rows"`
}

// FromTable converts a reference table
func FromTable(t *cohort.Table) ReferenceTable {
	out := ReferenceTable{Columns: append([]string(nil), t.Columns...)}
	out.Rows = make([]ReferenceRow, len(t.Rows))
	for i := range t.Rows {
		r := &t.Rows[i]
		out.Rows[i] = ReferenceRow{
			PTID:      r.SubjectID,
			Age:       r.Age,
			Sex:       r.Sex,
			Diagnosis: r.Diagnosis,
			Date:      r.Date.Format(time.DateOnly),
			ICV:       models.Float(r.ICV),
			Text:      r.Text,
			Values:    models.Floats(r.Values),
		}
	}
	return out
}

// FromRegions converts a per-label map to string keys in label order
func FromRegions(m volume.RegionVolumeMap) map[string]models.Float {
	out := make(map[string]models.Float, len(m))
	for _, label := range m.Labels() {
		out[strconv.Itoa(label)] = models.Float(m[label])
	}
	return out
}

// ManifestEntry records one stored artifact
type ManifestEntry struct {
	Name string `json:"name"`
	File string `json:"file"`
}

// CaseManifest describes one persisted bundle
type CaseManifest struct {
	RunID     string            `json:"runId"`
	CaseID    string            `json:"caseId"`
	CreatedAt time.Time         `json:"createdAt"`
	Inputs    map[string]string `json:"inputs"`
	Artifacts []ManifestEntry   `json:"artifacts"`
	FlagCount int               `json:"flagCount"`

	// Factor is the subject's ICV normalization factor
	Factor models.Float `json:"factor"`
}
