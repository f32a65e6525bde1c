package roi

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	apperr "roiquant/pkg/errors"
	"roiquant/pkg/tabular"
	"roiquant/pkg/volume"
)

// Member is one weighted term of a composite region
type Member struct {
	Label  int
	Weight float64
}

// Composite is a named region defined as a weighted sum of other regions.
// Members never refer to other composites of the same table.
type Composite struct {
	ID      string
	Members []Member
}

// Lookup returns the volume of a region, zero when it is absent
type Lookup func(label int) float64

// Sum evaluates the composite against lookup
func (c Composite) Sum(lookup Lookup) float64 {
	total := 0.0
	for _, m := range c.Members {
		total += m.Weight * lookup(m.Label)
	}
	return total
}

// CompositionTable is the ordered list of derived-ROI definitions
type CompositionTable []Composite

// LoadCompositionTable reads rows of "compositeId,<name>,label1,label2,..."
// Empty cells are ignored; every member has weight 1.
func LoadCompositionTable(path string) (CompositionTable, error) {
	records, err := tabular.ReadRecords(path)
	if err != nil {
		return nil, err
	}

	table := make(CompositionTable, 0, len(records))
	for i, rec := range records {
		fields := nonEmpty(rec)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, apperr.ReferenceData("composition row %d has no member labels", i+1)
		}

		c := Composite{ID: fields[0], Members: make([]Member, 0, len(fields)-2)}
		for _, f := range fields[2:] {
			label, err := strconv.Atoi(f)
			if err != nil {
				return nil, apperr.Wrap(err, apperr.KindReferenceData, "composition row %d: bad label %q", i+1, f)
			}
			c.Members = append(c.Members, Member{Label: label, Weight: 1})
		}
		table = append(table, c)
	}
	return table, nil
}

func nonEmpty(rec []string) []string {
	out := rec[:0:0]
	for _, f := range rec {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks that every member label is known to the dictionary
func (t CompositionTable) Validate(d *Dictionary) error {
	missing := map[int][]string{}
	for _, c := range t {
		for _, m := range c.Members {
			if !d.Has(m.Label) {
				missing[m.Label] = append(missing[m.Label], c.ID)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}

	labels := make([]int, 0, len(missing))
	for l := range missing {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%d (in %s)", l, strings.Join(missing[l], ","))
	}
	return apperr.ReferenceData("composition table references unknown labels").
		WithDetail("%s", strings.Join(parts, "; "))
}

// Aggregate evaluates every composite against lookup, keyed by composite ID
func (t CompositionTable) Aggregate(lookup Lookup) map[string]float64 {
	out := make(map[string]float64, len(t))
	for _, c := range t {
		out[c.ID] = c.Sum(lookup)
	}
	return out
}

// FromRegions adapts a per-label volume map into a Lookup
func FromRegions(m volume.RegionVolumeMap) Lookup {
	return func(label int) float64 {
		return m[label]
	}
}

// FromColumns adapts a row keyed by column name into a Lookup
func FromColumns(values map[string]float64) Lookup {
	return func(label int) float64 {
		return values[strconv.Itoa(label)]
	}
}

// Overlay returns a Lookup that prefers primary and falls back to secondary
// for ids primary does not define
func Overlay(primary map[string]float64, secondary volume.RegionVolumeMap) Lookup {
	return func(label int) float64 {
		if v, ok := primary[strconv.Itoa(label)]; ok {
			return v
		}
		return secondary[label]
	}
}
