package roi

import (
	"math"
	"sort"
)

// Labels split evenly between hemispheres when computing left/right brain
// volume (midline structures with no side in the dictionary)
var IndivisibleLabels = []int{4, 11, 35, 71, 72, 73, 95}

// Family is an anatomical structure reported as a total and, when
// bilateral, as left/right volumes with an asymmetry index.
type Family struct {
	Name  string
	Total Composite
	Left  *Composite
	Right *Composite
}

// Bilateral reports whether the family has left and right parts
func (f Family) Bilateral() bool {
	return f.Left != nil && f.Right != nil
}

// TotalName is the report column of the total volume
func (f Family) TotalName() string { return "Total " + f.Name + " Volume" }

// LeftName is the report column of the left volume
func (f Family) LeftName() string { return "Left " + f.Name + " Volume" }

// RightName is the report column of the right volume
func (f Family) RightName() string { return "Right " + f.Name + " Volume" }

// AIName is the report column of the asymmetry index
func (f Family) AIName() string { return f.Name + " AI" }

// AsymmetryIndex returns |left-right| / ((left+right)/2). It is NaN when
// left+right is zero.
func AsymmetryIndex(left, right float64) float64 {
	mean := (left + right) / 2
	if mean == 0 {
		return math.NaN()
	}
	return math.Abs(left-right) / mean
}

func members(weight float64, labels ...int) []Member {
	out := make([]Member, len(labels))
	for i, l := range labels {
		out[i] = Member{Label: l, Weight: weight}
	}
	return out
}

func composite(id string, parts ...[]Member) *Composite {
	c := &Composite{ID: id}
	for _, p := range parts {
		c.Members = append(c.Members, p...)
	}
	return c
}

// StandardFamilies returns the report structures. Hemisphere membership of
// the whole brain comes from the dictionary, restricted to single regions.
func StandardFamilies(d *Dictionary, singleRegionMax int) []Family {
	half := func(labels ...int) []Member { return members(0.5, labels...) }
	one := func(labels ...int) []Member { return members(1, labels...) }

	brain := Family{
		Name:  "Brain",
		Total: *composite("Total Brain Volume", one(701)),
		Left:  composite("Left Brain Volume", one(d.Side(Left, singleRegionMax)...), half(IndivisibleLabels...)),
		Right: composite("Right Brain Volume", one(d.Side(Right, singleRegionMax)...), half(IndivisibleLabels...)),
	}

	return []Family{
		brain,
		{
			Name:  "Brainstem",
			Total: *composite("Total Brainstem Volume", one(35, 61, 62)),
		},
		{
			Name:  "Ventricle",
			Total: *composite("Total Ventricle Volume", one(509)),
			Left:  composite("Left Ventricle Volume", one(50, 52), half(4, 11)),
			Right: composite("Right Ventricle Volume", one(49, 51), half(4, 11)),
		},
		{
			Name:  "Cerebellum",
			Total: *composite("Total Cerebellum Volume", one(502)),
			Left:  composite("Left Cerebellum Volume", one(510)),
			Right: composite("Right Cerebellum Volume", one(518)),
		},
		{
			Name:  "Gray Matter",
			Total: *composite("Total Gray Matter Volume", one(601)),
			Left:  composite("Left Gray Matter Volume", one(606), half(71, 72, 73)),
			Right: composite("Right Gray Matter Volume", one(613), half(71, 72, 73)),
		},
		{
			Name:  "White Matter",
			Total: *composite("Total White Matter Volume", one(604)),
			Left:  composite("Left White Matter Volume", one(607), half(95)),
			Right: composite("Right White Matter Volume", one(614), half(95)),
		},
		{
			Name:  "Hippocampus",
			Total: *composite("Total Hippocampus Volume", one(47, 48)),
			Left:  composite("Left Hippocampus Volume", one(48)),
			Right: composite("Right Hippocampus Volume", one(47)),
		},
	}
}

// Evaluate computes every family's columns against lookup. AI values are
// computed after both sides are known.
func Evaluate(families []Family, lookup Lookup) map[string]float64 {
	out := make(map[string]float64, 4*len(families))
	for _, f := range families {
		out[f.TotalName()] = f.Total.Sum(lookup)
		if !f.Bilateral() {
			continue
		}
		left, right := f.Left.Sum(lookup), f.Right.Sum(lookup)
		out[f.LeftName()] = left
		out[f.RightName()] = right
		out[f.AIName()] = AsymmetryIndex(left, right)
	}
	return out
}

// ColumnNames lists every column Evaluate produces, sorted
func ColumnNames(families []Family) []string {
	var names []string
	for _, f := range families {
		names = append(names, f.TotalName())
		if f.Bilateral() {
			names = append(names, f.LeftName(), f.RightName(), f.AIName())
		}
	}
	sort.Strings(names)
	return names
}
