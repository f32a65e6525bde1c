package models

import (
	"sort"
	"time"
)

// Sex values used by the subject record and the reference cohorts
const (
	SexMale   = "M"
	SexFemale = "F"
)

// Demographics holds the fields parsed from a subject's demographic record.
// Every field except ExamDate is required downstream.
type Demographics struct {
	// MRID identifies the scan/subject
	MRID string `json:"MRID"`

	// Age in years
	Age float64 `json:"Age"`

	// Sex is either SexMale or SexFemale
	Sex string `json:"Sex"`

	// ExamDate is the study date formatted as MM/DD/YYYY (empty if unknown)
	ExamDate string `json:"ExamDate"`
}

// SubjectRecord is the per-case subject row. Volumes grows as composite
// regions are computed and is rewritten in place by ICV adjustment.
type SubjectRecord struct {
	MRID string  `json:"MRID"`
	Age  float64 `json:"Age"`
	Sex  string  `json:"Sex"`

	// ICV is the intracranial volume, set once from the ICV mask
	ICV float64 `json:"ICV"`

	// WMLS is the lesion volume; zero when no lesion mask is supplied
	WMLS float64 `json:"WMLS"`

	// Volumes maps composite region name to volume
	Volumes map[string]float64 `json:"Volumes"`
}

// NewSubjectRecord builds an empty record from parsed demographics
func NewSubjectRecord(d Demographics) *SubjectRecord {
	return &SubjectRecord{
		MRID:    d.MRID,
		Age:     d.Age,
		Sex:     d.Sex,
		Volumes: make(map[string]float64),
	}
}

// Clone returns a deep copy of the record
func (s *SubjectRecord) Clone() *SubjectRecord {
	c := *s
	c.Volumes = make(map[string]float64, len(s.Volumes))
	for k, v := range s.Volumes {
		c.Volumes[k] = v
	}
	return &c
}

// VolumeNames returns the volume keys in sorted order
func (s *SubjectRecord) VolumeNames() []string {
	names := make([]string, 0, len(s.Volumes))
	for k := range s.Volumes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Header is the small demographic record printed at the top of the report
type Header struct {
	MRID       string `json:"MRID"`
	Age        string `json:"Age"`
	Sex        string `json:"Sex"`
	ExamDate   string `json:"ExamDate"`
	ReportDate string `json:"ReportDate"`
}

// NewHeader builds the report header; the report date uses MM-DD-YYYY
func NewHeader(d Demographics, now time.Time) Header {
	return Header{
		MRID:       d.MRID,
		Age:        formatAge(d.Age),
		Sex:        d.Sex,
		ExamDate:   d.ExamDate,
		ReportDate: now.Format("01-02-2006"),
	}
}
