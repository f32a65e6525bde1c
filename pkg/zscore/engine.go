// Package zscore compares a subject's single-region volumes with the
// age-matched control window of a normalized reference cohort.
package zscore

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"roiquant/internal/logging"
	"roiquant/internal/models"
	"roiquant/pkg/cohort"
	apperr "roiquant/pkg/errors"
	"roiquant/pkg/roi"
)

// Score is the comparison of one region against its reference window
type Score struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Raw is the subject's unadjusted volume, Corrected its ICV-corrected value
	Raw       models.Float `json:"raw"`
	Corrected models.Float `json:"corrected"`

	Z models.Float `json:"z"`

	// Percentile is the standard normal CDF of Z, in percent
	Percentile models.Float `json:"percentile"`

	// Rank is the percentage of window values not above Corrected
	Rank models.Float `json:"rank"`

	WindowCount int          `json:"windowCount"`
	WindowMean  models.Float `json:"windowMean"`
	WindowStd   models.Float `json:"windowStd"`
	WindowP05   models.Float `json:"windowP05"`
	WindowP50   models.Float `json:"windowP50"`
	WindowP95   models.Float `json:"windowP95"`
}

// Result holds every region's score
type Result struct {
	Scores []Score

	// MeanICV is the mean raw ICV of the subject's window
	MeanICV     float64
	WindowCount int

	Flags []models.Flag
}

// ByID maps region id to z-score
func (r *Result) ByID() map[string]float64 {
	out := make(map[string]float64, len(r.Scores))
	for _, s := range r.Scores {
		out[s.ID] = float64(s.Z)
	}
	return out
}

// ByName maps region name to z-score
func (r *Result) ByName() map[string]float64 {
	out := make(map[string]float64, len(r.Scores))
	for _, s := range r.Scores {
		out[s.Name] = float64(s.Z)
	}
	return out
}

// Engine scores single regions. The window must be the one the reference
// table was normalized with.
type Engine struct {
	Window          cohort.Window
	UnitScale       float64
	SingleRegionMax int
	Dictionary      *roi.Dictionary

	logger logging.Logger
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine(w cohort.Window, unitScale float64, singleRegionMax int, dict *roi.Dictionary, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{
		Window:          w,
		UnitScale:       unitScale,
		SingleRegionMax: singleRegionMax,
		Dictionary:      dict,
		logger:          logger.Named("zscore"),
	}
}

// Candidates returns the ids of regions that are single regions and are
// present both in regions and as a reference column, in numeric order
func (e *Engine) Candidates(regions map[string]float64, ref *cohort.Table) []int {
	var ids []int
	for key := range regions {
		id, err := strconv.Atoi(key)
		if err != nil || id > e.SingleRegionMax {
			continue
		}
		if ref.HasColumn(key) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Score computes z-scores for a subject of the given age. regions holds raw
// volumes keyed by region id and icvRaw is the subject's raw ICV; ref is the
// normalized, sex-filtered reference table.
//
// The correction applied to the subject is raw / icvRaw * mean(window raw
// ICV) / UnitScale. A region whose window is empty, holds a single row or
// has zero spread gets a NaN z-score and a flag naming the region.
func (e *Engine) Score(age float64, regions map[string]float64, icvRaw float64, ref *cohort.Table) (*Result, error) {
	if !(icvRaw > 0) || math.IsInf(icvRaw, 0) {
		return nil, apperr.Computation("z-score: subject ICV must be positive, got %v", icvRaw)
	}

	idx := cohort.NewWindowIndex(ref, e.Window)
	rows := idx.Rows(age)
	meanICV, count := idx.MeanICV(age)
	res := &Result{MeanICV: meanICV, WindowCount: count}

	window := make([]float64, len(rows))
	for _, id := range e.Candidates(regions, ref) {
		key := strconv.Itoa(id)
		for k, i := range rows {
			window[k] = ref.Rows[i].Values[key]
		}

		name, ok := e.Dictionary.Name(id)
		if !ok {
			name = key
			res.Flags = append(res.Flags, models.Flag{
				Kind:    models.FlagUnresolvedLabel,
				Scope:   "zscore",
				Region:  key,
				Message: fmt.Sprintf("region %d has no dictionary name", id),
			})
		}

		raw := regions[key]
		s := e.score(raw/icvRaw*meanICV/e.UnitScale, window)
		s.ID = key
		s.Name = name
		s.Raw = models.Float(raw)

		if f, ok := e.windowFlag(age, count, float64(s.WindowStd)); ok {
			f.Region = key
			res.Flags = append(res.Flags, f)
		}
		res.Scores = append(res.Scores, s)
	}

	e.logger.Debug("scored regions",
		logging.Int("regions", len(res.Scores)),
		logging.Int("window_rows", count),
		logging.Float64("mean_icv", meanICV))
	return res, nil
}

// windowFlag reports why a region's window cannot give a z-score
func (e *Engine) windowFlag(age float64, count int, std float64) (models.Flag, bool) {
	switch {
	case count == 0:
		return models.Flag{
			Kind:    models.FlagEmptyWindow,
			Scope:   "zscore",
			Message: fmt.Sprintf("no %s reference rows within %.0f years of age %g", e.Window.Diagnosis, e.Window.HalfWidth, age),
		}, true
	case count == 1:
		return models.Flag{
			Kind:    models.FlagDegenerateWindow,
			Scope:   "zscore",
			Message: fmt.Sprintf("reference window around age %g has a single row", age),
		}, true
	case std == 0:
		return models.Flag{
			Kind:    models.FlagDegenerateWindow,
			Scope:   "zscore",
			Message: "reference window has zero spread",
		}, true
	}
	return models.Flag{}, false
}

func (e *Engine) score(corrected float64, window []float64) Score {
	nan := models.Float(math.NaN())
	s := Score{
		Corrected:   models.Float(corrected),
		Z:           nan,
		Percentile:  nan,
		Rank:        nan,
		WindowCount: len(window),
		WindowMean:  nan,
		WindowStd:   nan,
		WindowP05:   nan,
		WindowP50:   nan,
		WindowP95:   nan,
	}
	if len(window) == 0 {
		return s
	}

	s.WindowMean = models.Float(stat.Mean(window, nil))
	s.WindowP05 = percentile(window, 5)
	s.WindowP50 = percentile(window, 50)
	s.WindowP95 = percentile(window, 95)
	s.Rank = rank(window, corrected)
	if len(window) < 2 {
		return s
	}

	// sample standard deviation (n-1)
	mean, std := stat.MeanStdDev(window, nil)
	s.WindowMean = models.Float(mean)
	s.WindowStd = models.Float(std)
	if std == 0 || math.IsNaN(std) {
		return s
	}

	z := (corrected - mean) / std
	s.Z = models.Float(z)
	s.Percentile = models.Float(100 * distuv.UnitNormal.CDF(z))
	return s
}

func percentile(window []float64, p float64) models.Float {
	v, err := stats.PercentileNearestRank(stats.Float64Data(window), p)
	if err != nil {
		return models.Float(math.NaN())
	}
	return models.Float(v)
}

func rank(window []float64, v float64) models.Float {
	n := 0
	for _, w := range window {
		if w <= v {
			n++
		}
	}
	return models.Float(100 * float64(n) / float64(len(window)))
}
