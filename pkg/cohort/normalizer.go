package cohort

import (
	"fmt"
	"math"
	"strings"

	"roiquant/internal/logging"
	"roiquant/internal/models"
	apperr "roiquant/pkg/errors"
)

// Normalizer performs the row-local ICV adjustment: every volume v of a row
// with raw ICV icv becomes v / icv * mean(window ICV) / UnitScale, where the
// window is centred on that row's own age.
type Normalizer struct {
	Window    Window
	UnitScale float64

	// Excluded columns are never rewritten
	Excluded []string

	// AIPattern marks asymmetry-index columns, which are ratios
	AIPattern string

	logger logging.Logger
}

// NewNormalizer creates a normalizer. A nil logger discards output.
func NewNormalizer(w Window, unitScale float64, excluded []string, aiPattern string, logger logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Normalizer{
		Window:    w,
		UnitScale: unitScale,
		Excluded:  excluded,
		AIPattern: aiPattern,
		logger:    logger.Named("normalizer"),
	}
}

// Skips reports whether column is left untouched by normalization
func (n *Normalizer) Skips(column string) bool {
	if n.AIPattern != "" && strings.Contains(column, n.AIPattern) {
		return true
	}
	for _, ex := range n.Excluded {
		if column == ex {
			return true
		}
	}
	return false
}

// NormalizeTable returns an adjusted copy of t. Window means are computed
// from raw ICVs for every row before any value is rewritten; t is not
// modified. Rows whose window is empty become NaN and are reported in a
// single flag tagged with scope.
func (n *Normalizer) NormalizeTable(t *Table, scope string) (*Table, []models.Flag) {
	idx := NewWindowIndex(t, n.Window)
	factors := make([]float64, len(t.Rows))
	empty := 0
	for i := range t.Rows {
		mean, count := idx.MeanICV(t.Rows[i].Age)
		if count == 0 {
			empty++
		}
		factors[i] = mean / n.UnitScale
	}

	out := t.Clone()
	for i := range out.Rows {
		r := &out.Rows[i]
		for _, col := range out.Columns {
			if n.Skips(col) {
				continue
			}
			if v, ok := r.Values[col]; ok {
				r.Values[col] = v / r.ICV * factors[i]
			}
		}
	}

	n.logger.Debug("normalized reference table",
		logging.String("scope", scope),
		logging.Int("rows", len(out.Rows)),
		logging.Int("empty_windows", empty))

	var flags []models.Flag
	if empty > 0 {
		flags = append(flags, models.Flag{
			Kind:    models.FlagEmptyWindow,
			Scope:   scope,
			Message: fmt.Sprintf("%d reference rows have no %s rows within %.0f years", empty, n.Window.Diagnosis, n.Window.HalfWidth),
		})
	}
	return out, flags
}

// SubjectFactor returns mean(window ICV) / UnitScale for a subject of the
// given age, drawn from ref, and the window size
func (n *Normalizer) SubjectFactor(ref *Table, age float64) (float64, int) {
	mean, count := WindowMeanICV(ref, age, n.Window)
	return mean / n.UnitScale, count
}

// NormalizeSubject returns an adjusted copy of s together with the constant
// factor used. Every volume except asymmetry indices is rewritten.
func (n *Normalizer) NormalizeSubject(s *models.SubjectRecord, ref *Table) (*models.SubjectRecord, float64, []models.Flag, error) {
	if !(s.ICV > 0) || math.IsInf(s.ICV, 0) {
		return nil, 0, nil, apperr.Computation("subject ICV must be positive, got %v", s.ICV)
	}

	factor, count := n.SubjectFactor(ref, s.Age)
	var flags []models.Flag
	if count == 0 {
		flags = append(flags, models.Flag{
			Kind:    models.FlagEmptyWindow,
			Scope:   "subject",
			Message: fmt.Sprintf("no %s reference rows within %.0f years of age %g", n.Window.Diagnosis, n.Window.HalfWidth, s.Age),
		})
	}

	out := s.Clone()
	for name, v := range out.Volumes {
		if n.Skips(name) {
			continue
		}
		out.Volumes[name] = v / s.ICV * factor
	}
	return out, factor, flags, nil
}

// NormalizeRegions adjusts a per-region map with the subject's factor. When
// icvKey is set the raw ICV is stored under it, replacing any segmented value.
func NormalizeRegions(regions map[string]float64, icv, factor float64, icvKey string) map[string]float64 {
	out := make(map[string]float64, len(regions)+1)
	for k, v := range regions {
		out[k] = v / icv * factor
	}
	if icvKey != "" {
		out[icvKey] = icv
	}
	return out
}

// Input bundles everything adjusted for one case
type Input struct {
	Subject       *models.SubjectRecord
	Reference     *Table
	WMLSReference *Table

	// RegionsByID and RegionsByName are the subject's single and derived
	// region volumes. The adjusted maps carry the raw ICV under ICVID and
	// ICVName respectively.
	RegionsByID   map[string]float64
	RegionsByName map[string]float64
	ICVID         string
	ICVName       string
}

// Output holds adjusted copies of every Input table and map
type Output struct {
	Subject       *models.SubjectRecord
	Reference     *Table
	WMLSReference *Table
	RegionsByID   map[string]float64
	RegionsByName map[string]float64

	// Factor is mean(window ICV) / UnitScale for the subject
	Factor float64

	Flags []models.Flag
}

// Normalize adjusts a whole case. Both reference tables are adjusted first;
// the subject's factor then comes from the raw ICVs of the adjusted ROI
// reference, which are preserved by construction. None of the inputs are
// modified.
func (n *Normalizer) Normalize(in Input) (*Output, error) {
	if in.Subject == nil || in.Reference == nil {
		return nil, apperr.New(apperr.KindInternal, "normalize: subject and reference are required")
	}

	out := &Output{}
	var flags []models.Flag

	out.Reference, flags = n.NormalizeTable(in.Reference, "reference")
	out.Flags = append(out.Flags, flags...)

	if in.WMLSReference != nil {
		out.WMLSReference, flags = n.NormalizeTable(in.WMLSReference, "wmls_reference")
		out.Flags = append(out.Flags, flags...)
	}

	subject, factor, flags, err := n.NormalizeSubject(in.Subject, out.Reference)
	if err != nil {
		return nil, err
	}
	out.Subject = subject
	out.Factor = factor
	out.Flags = append(out.Flags, flags...)

	out.RegionsByID = NormalizeRegions(in.RegionsByID, in.Subject.ICV, factor, in.ICVID)
	out.RegionsByName = NormalizeRegions(in.RegionsByName, in.Subject.ICV, factor, in.ICVName)

	n.logger.Info("normalized case",
		logging.String("mrid", in.Subject.MRID),
		logging.Float64("factor", factor))
	return out, nil
}
