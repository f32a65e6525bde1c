package cohort

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Window selects the reference rows a subject of a given age is compared
// against: rows whose Age lies in [center-HalfWidth, center+HalfWidth]
// (inclusive) and whose Diagnosis equals Diagnosis. An empty Sex matches
// every row; the tables are normally sex-filtered before use.
type Window struct {
	HalfWidth float64
	Diagnosis string
	Sex       string
}

func (w Window) accepts(r *Row) bool {
	if r.Diagnosis != w.Diagnosis {
		return false
	}
	return w.Sex == "" || r.Sex == w.Sex
}

// WindowIndex answers window queries against one table. The normalizer and
// the z-score engine both select rows through it.
type WindowIndex struct {
	window Window
	table  *Table
	ages   []float64
	rows   []int
	icvs   []float64
}

// NewWindowIndex indexes the rows of t accepted by w, ordered by age. The
// raw ICV of every row is captured here, so later rewrites of t.Values do
// not change the window means.
func NewWindowIndex(t *Table, w Window) *WindowIndex {
	idx := &WindowIndex{window: w, table: t}
	for i := range t.Rows {
		if w.accepts(&t.Rows[i]) {
			idx.rows = append(idx.rows, i)
		}
	}
	sort.SliceStable(idx.rows, func(a, b int) bool {
		return t.Rows[idx.rows[a]].Age < t.Rows[idx.rows[b]].Age
	})
	idx.ages = make([]float64, len(idx.rows))
	idx.icvs = make([]float64, len(idx.rows))
	for k, i := range idx.rows {
		idx.ages[k] = t.Rows[i].Age
		idx.icvs[k] = t.Rows[i].ICV
	}
	return idx
}

func (idx *WindowIndex) bounds(center float64) (int, int) {
	lo := center - idx.window.HalfWidth
	hi := center + idx.window.HalfWidth
	first := sort.Search(len(idx.ages), func(i int) bool { return idx.ages[i] >= lo })
	last := sort.Search(len(idx.ages), func(i int) bool { return idx.ages[i] > hi })
	return first, last
}

// Rows returns the table indices of the rows in the window around center,
// in file order
func (idx *WindowIndex) Rows(center float64) []int {
	first, last := idx.bounds(center)
	out := append([]int(nil), idx.rows[first:last]...)
	sort.Ints(out)
	return out
}

// Count returns the number of rows in the window around center
func (idx *WindowIndex) Count(center float64) int {
	first, last := idx.bounds(center)
	return last - first
}

// MeanICV returns the mean raw ICV of the window around center and the
// number of rows it covers. An empty window yields NaN.
func (idx *WindowIndex) MeanICV(center float64) (float64, int) {
	first, last := idx.bounds(center)
	if first == last {
		return math.NaN(), 0
	}
	return stat.Mean(idx.icvs[first:last], nil), last - first
}

// WindowMeanICV is the single-query form of WindowIndex.MeanICV
func WindowMeanICV(t *Table, center float64, w Window) (float64, int) {
	return NewWindowIndex(t, w).MeanICV(center)
}
