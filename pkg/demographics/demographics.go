// Package demographics reads the per-case demographic record. The native
// format is a JSON object with MRID, Age, Sex and ExamDate; DICOM-derived
// JSON exports and two-column CSV files are accepted through adapters.
package demographics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"roiquant/internal/models"
	apperr "roiquant/pkg/errors"
	"roiquant/pkg/tabular"
)

// Schema keys of the native format
const (
	KeyMRID     = "MRID"
	KeyAge      = "Age"
	KeySex      = "Sex"
	KeyExamDate = "ExamDate"
)

// Substrings that identify fields of a DICOM-derived export
const (
	legacyPatientID = "PatientID"
	legacyAge       = "PatientAge"
	legacySex       = "PatientSex"
	legacyStudyDate = "StudyDate_date"
)

const examDateLayout = "01/02/2006"

// ReadFile parses a .json or .csv demographic file
func ReadFile(path string) (models.Demographics, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return models.Demographics{}, apperr.Wrap(err, apperr.KindInput, "open demographics %s", path)
		}
		defer f.Close()
		return ReadJSON(f)
	case ".csv":
		records, err := tabular.ReadRecords(path)
		if err != nil {
			return models.Demographics{}, apperr.Wrap(err, apperr.KindInput, "read demographics %s", path)
		}
		return FromRecords(records)
	default:
		return models.Demographics{}, apperr.Input("unsupported demographics format %q", filepath.Ext(path))
	}
}

// ReadJSON parses a JSON object. Objects carrying the native MRID key are
// read by name; anything else goes through the DICOM adapter.
func ReadJSON(r io.Reader) (models.Demographics, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return models.Demographics{}, apperr.Wrap(err, apperr.KindInput, "decode demographics")
	}
	if _, ok := raw[KeyMRID]; ok {
		return fromSchema(raw)
	}
	return fromDICOM(raw)
}

// FromRecords reads key/value rows such as those of a two-column CSV
func FromRecords(records [][]string) (models.Demographics, error) {
	raw := make(map[string]interface{}, len(records))
	for _, rec := range records {
		if len(rec) < 2 {
			continue
		}
		raw[strings.TrimSpace(rec[0])] = strings.TrimSpace(rec[1])
	}
	return fromSchema(raw)
}

func fromSchema(raw map[string]interface{}) (models.Demographics, error) {
	var d models.Demographics
	var err error

	id, ok := raw[KeyMRID]
	if !ok || text(id) == "" {
		return d, apperr.Input("demographics: missing %s", KeyMRID)
	}
	d.MRID = text(id)

	age, ok := raw[KeyAge]
	if !ok {
		return d, apperr.Input("demographics: missing %s", KeyAge)
	}
	if d.Age, err = ParseAge(age, false); err != nil {
		return d, err
	}

	sex, ok := raw[KeySex]
	if !ok {
		return d, apperr.Input("demographics: missing %s", KeySex)
	}
	if d.Sex, err = ParseSex(text(sex)); err != nil {
		return d, err
	}

	if date, ok := raw[KeyExamDate]; ok {
		d.ExamDate = text(date)
	}
	return d, nil
}

// fromDICOM locates fields by key substring. The age must carry a unit
// suffix, as DICOM AgeString values do.
func fromDICOM(raw map[string]interface{}) (models.Demographics, error) {
	var d models.Demographics

	id, ok := findKey(raw, legacyPatientID, nil)
	if !ok || text(id) == "" {
		return d, apperr.Input("demographics: no %s field", legacyPatientID)
	}
	d.MRID = text(id)

	age, ok := findKey(raw, legacyAge, func(v interface{}) bool {
		_, err := ParseAge(v, true)
		return err == nil
	})
	if !ok {
		return d, apperr.Input("demographics: no %s field with a unit suffix", legacyAge)
	}
	d.Age, _ = ParseAge(age, true)

	sex, ok := findKey(raw, legacySex, nil)
	if !ok {
		return d, apperr.Input("demographics: no %s field", legacySex)
	}
	var err error
	if d.Sex, err = ParseSex(text(sex)); err != nil {
		return d, err
	}

	if date, ok := findKey(raw, legacyStudyDate, nil); ok {
		t, err := time.Parse("2006-01-02", text(date))
		if err != nil {
			return d, apperr.Wrap(err, apperr.KindInput, "demographics: bad study date %q", text(date))
		}
		d.ExamDate = t.Format(examDateLayout)
	}
	return d, nil
}

// findKey returns the value of the first key, in sorted key order, that
// contains substr and is accepted by match (nil accepts anything)
func findKey(raw map[string]interface{}, substr string, match func(interface{}) bool) (interface{}, bool) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		if strings.Contains(k, substr) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if match == nil || match(raw[k]) {
			return raw[k], true
		}
	}
	return nil, false
}

// ParseAge converts an age to years. Strings may end in Y, M, W or D
// ("070Y", "18M"); bare numbers are years unless requireUnit is set.
func ParseAge(v interface{}, requireUnit bool) (float64, error) {
	if n, ok := v.(float64); ok {
		if requireUnit {
			return 0, apperr.Input("demographics: age %v has no unit suffix", n)
		}
		return n, nil
	}

	s := strings.ToUpper(strings.TrimSpace(text(v)))
	if s == "" {
		return 0, apperr.Input("demographics: empty age")
	}

	scale := 0.0
	switch s[len(s)-1] {
	case 'Y':
		scale = 1
	case 'M':
		scale = 1.0 / 12
	case 'W':
		scale = 7 / 365.25
	case 'D':
		scale = 1 / 365.25
	}
	if scale == 0 {
		if requireUnit {
			return 0, apperr.Input("demographics: age %q has no unit suffix", s)
		}
		scale = 1
	} else {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n < 0 {
		return 0, apperr.Input("demographics: unparseable age %q", text(v))
	}
	return n * scale, nil
}

// ParseSex normalizes M/F spellings
func ParseSex(s string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "M", "MALE":
		return models.SexMale, nil
	case "F", "FEMALE":
		return models.SexFemale, nil
	}
	return "", apperr.Input("demographics: unsupported sex %q", s)
}

func text(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
