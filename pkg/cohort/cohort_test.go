package cohort

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roiquant/internal/models"
	apperr "roiquant/pkg/errors"
	"roiquant/pkg/roi"
)

var testWindow = Window{HalfWidth: 3, Diagnosis: "CN"}

func testRow(id string, age, icv float64, diagnosis string, values map[string]float64) Row {
	v := map[string]float64{"702": icv}
	for k, x := range values {
		v[k] = x
	}
	return Row{
		SubjectID: id,
		Age:       age,
		Sex:       models.SexFemale,
		Diagnosis: diagnosis,
		Date:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		ICV:       icv,
		Text:      map[string]string{},
		Values:    v,
	}
}

// reference population whose window around 70 has mean ICV 1,400,000
func testReference() *Table {
	return &Table{
		Columns: []string{"702", "47", "ICV"},
		Rows: []Row{
			testRow("a", 67, 1300000, "CN", map[string]float64{"47": 3000, "ICV": 1300000}),
			testRow("b", 70, 1400000, "CN", map[string]float64{"47": 3100, "ICV": 1400000}),
			testRow("c", 73, 1500000, "CN", map[string]float64{"47": 2900, "ICV": 1500000}),
			testRow("d", 70, 9000000, "AD", map[string]float64{"47": 2000, "ICV": 9000000}),
			testRow("e", 80, 1000000, "CN", map[string]float64{"47": 2500, "ICV": 1000000}),
		},
	}
}

func testNormalizer() *Normalizer {
	return NewNormalizer(testWindow, 1000, []string{"ICV"}, "AI", nil)
}

func TestWindowMeanICV(t *testing.T) {
	mean, n := WindowMeanICV(testReference(), 70, testWindow)
	assert.Equal(t, 3, n)
	assert.InDelta(t, 1400000, mean, 1e-6)

	mean, n = WindowMeanICV(testReference(), 40, testWindow)
	assert.Equal(t, 0, n)
	assert.True(t, math.IsNaN(mean))
}

func TestWindowIndex_RowsInclusive(t *testing.T) {
	idx := NewWindowIndex(testReference(), testWindow)
	assert.Equal(t, []int{0, 1, 2}, idx.Rows(70))
	assert.Equal(t, []int{2}, idx.Rows(76))
	assert.Equal(t, 1, idx.Count(83))
}

func TestNormalizeSubject(t *testing.T) {
	subject := &models.SubjectRecord{
		MRID:    "s1",
		Age:     70,
		Sex:     models.SexFemale,
		ICV:     1500000,
		Volumes: map[string]float64{"Total Brain Volume": 3000, "Brain AI": 0.1},
	}

	out, factor, flags, err := testNormalizer().NormalizeSubject(subject, testReference())
	require.NoError(t, err)
	assert.Empty(t, flags)
	assert.InDelta(t, 1400, factor, 1e-9)
	assert.InDelta(t, 2.8, out.Volumes["Total Brain Volume"], 1e-9)
	assert.Equal(t, 0.1, out.Volumes["Brain AI"])

	// input untouched
	assert.Equal(t, 3000.0, subject.Volumes["Total Brain Volume"])
}

func TestNormalizeSubject_UnitInvariant(t *testing.T) {
	mk := func(scale float64) *models.SubjectRecord {
		return &models.SubjectRecord{
			Age:     70,
			ICV:     1500000 * scale,
			Volumes: map[string]float64{"x": 3000 * scale, "y": 120 * scale},
		}
	}
	n := testNormalizer()
	a, _, _, err := n.NormalizeSubject(mk(1), testReference())
	require.NoError(t, err)
	b, _, _, err := n.NormalizeSubject(mk(0.001), testReference())
	require.NoError(t, err)

	for k, v := range a.Volumes {
		assert.InDelta(t, v, b.Volumes[k], 1e-9, k)
	}
}

func TestNormalizeSubject_ZeroICV(t *testing.T) {
	for _, icv := range []float64{0, -1, math.NaN()} {
		_, _, _, err := testNormalizer().NormalizeSubject(&models.SubjectRecord{Age: 70, ICV: icv}, testReference())
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrComputation)
	}
}

func TestNormalizeSubject_EmptyWindowFlagged(t *testing.T) {
	subject := &models.SubjectRecord{Age: 30, ICV: 1500000, Volumes: map[string]float64{"x": 10}}
	out, _, flags, err := testNormalizer().NormalizeSubject(subject, testReference())
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, models.FlagEmptyWindow, flags[0].Kind)
	assert.True(t, math.IsNaN(out.Volumes["x"]))
}

func TestNormalizeTable_RowLocal(t *testing.T) {
	ref := testReference()
	out, flags := testNormalizer().NormalizeTable(ref, "reference")
	assert.Empty(t, flags)

	// row b: window {a,b,c}, mean 1.4e6
	assert.InDelta(t, 3100.0/1400000*1400, out.Rows[1].Values["47"], 1e-9)
	// row e: window {e} only (c at 73 is outside 77..83)
	assert.InDelta(t, 2500.0/1000000*1000, out.Rows[4].Values["47"], 1e-9)
	// row a: window {a,b} (c is 6 years away)
	assert.InDelta(t, 3000.0/1300000*1350, out.Rows[0].Values["47"], 1e-9)

	// the ICV column itself is normalized, the raw ICV field is not
	assert.InDelta(t, 1400.0, out.Rows[1].Values["702"], 1e-9)
	assert.Equal(t, 1400000.0, out.Rows[1].ICV)
	assert.Equal(t, 1400000.0, out.Rows[1].Values["ICV"])
}

func TestNormalizeTable_DoesNotMutateInput(t *testing.T) {
	ref := testReference()
	_, _ = testNormalizer().NormalizeTable(ref, "reference")
	assert.Equal(t, 3100.0, ref.Rows[1].Values["47"])
	assert.Equal(t, 1400000.0, ref.Rows[1].Values["702"])
}

func TestNormalizeTable_UsesRawICVForEveryRow(t *testing.T) {
	// normalizing twice from the same source must give the same answer, so
	// later rows never see ICVs rewritten by earlier ones
	ref := testReference()
	a, _ := testNormalizer().NormalizeTable(ref, "reference")
	b, _ := testNormalizer().NormalizeTable(ref, "reference")
	assert.Equal(t, a.Column("47"), b.Column("47"))
}

func TestNormalize_Case(t *testing.T) {
	subject := &models.SubjectRecord{
		MRID: "s1", Age: 70, Sex: models.SexFemale, ICV: 1500000,
		Volumes: map[string]float64{"Total Brain Volume": 3000},
	}
	out, err := testNormalizer().Normalize(Input{
		Subject:       subject,
		Reference:     testReference(),
		WMLSReference: testReference(),
		RegionsByID:   map[string]float64{"47": 3000, "702": 22},
		RegionsByName: map[string]float64{"Right Hippocampus": 3000},
		ICVID:         "702",
		ICVName:       "ICV",
	})
	require.NoError(t, err)
	assert.InDelta(t, 2.8, out.Subject.Volumes["Total Brain Volume"], 1e-9)
	assert.InDelta(t, 2.8, out.RegionsByID["47"], 1e-9)
	assert.Equal(t, 1500000.0, out.RegionsByID["702"])
	assert.InDelta(t, 2.8, out.RegionsByName["Right Hippocampus"], 1e-9)
	assert.Equal(t, 1500000.0, out.RegionsByName["ICV"])
	assert.NotNil(t, out.WMLSReference)
	assert.InDelta(t, 1400, out.Factor, 1e-9)
}

func TestFirstVisits(t *testing.T) {
	early := testRow("p1", 70, 1, "CN", nil)
	early.Date = time.Date(2010, 5, 1, 0, 0, 0, 0, time.UTC)
	late := testRow("p1", 72, 2, "CN", nil)
	late.Date = time.Date(2012, 5, 1, 0, 0, 0, 0, time.UTC)
	other := testRow("p2", 60, 3, "CN", nil)

	tbl := &Table{Columns: []string{"702"}, Rows: []Row{late, other, early}}
	out := tbl.FirstVisits()
	require.Equal(t, 2, out.Len())

	byID := map[string]Row{}
	for _, r := range out.Rows {
		byID[r.SubjectID] = r
	}
	assert.Equal(t, 70.0, byID["p1"].Age)
	assert.Equal(t, 3, len(tbl.Rows))
}

func TestFilterSex_Copies(t *testing.T) {
	tbl := testReference()
	tbl.Rows[0].Sex = models.SexMale
	out := tbl.FilterSex(models.SexFemale)
	assert.Equal(t, 4, out.Len())

	out.Rows[0].Values["47"] = -1
	assert.Equal(t, 3100.0, tbl.Rows[1].Values["47"])
}

func TestAddColumns(t *testing.T) {
	tbl := testReference()
	table := roi.CompositionTable{{ID: "900", Members: []roi.Member{{Label: 47, Weight: 0.5}}}}
	tbl.AddColumns(table.Aggregate)

	assert.True(t, tbl.HasColumn("900"))
	assert.InDelta(t, 1550, tbl.Rows[1].Values["900"], 1e-9)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.csv")
	csv := "PTID,MRID,Age,Sex,Diagnosis_nearest_2.0,Date,702,47,604\n" +
		"p1,m1,70,F,CN,2012-05-01,1400000,3000,10\n" +
		"p1,m2,68,F,CN,2010-05-01,1390000,3050,11\n" +
		"p2,m3,71,M,CN,05/01/2011,1500000,3100,12\n" +
		"p3,m4,71,M,CN,2011-05-01,,3100,12\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0644))

	schema := Schema{
		SubjectIDColumn: "PTID",
		AgeColumn:       "Age",
		SexColumn:       "Sex",
		DiagnosisColumn: "Diagnosis_nearest_2.0",
		DateColumn:      "Date",
		TextColumns:     []string{"MRID"},
		ICVColumn:       "702",
		Rename:          map[string]string{"604": "WMH"},
	}
	tbl, dropped, err := Load(path, schema)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"702", "47", "WMH"}, tbl.Columns)

	first := tbl.Rows[0]
	assert.Equal(t, "p1", first.SubjectID)
	assert.Equal(t, 68.0, first.Age)
	assert.Equal(t, "m2", first.Text["MRID"])
	assert.Equal(t, 1390000.0, first.ICV)
	assert.Equal(t, 11.0, first.Values["WMH"])
}

func TestLoad_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.csv")
	require.NoError(t, os.WriteFile(path, []byte("PTID,Age\np1,70\n"), 0644))

	_, _, err := Load(path, Schema{SubjectIDColumn: "PTID", AgeColumn: "Age", SexColumn: "Sex",
		DiagnosisColumn: "Dx", DateColumn: "Date", ICVColumn: "702"})
	assert.ErrorIs(t, err, apperr.ErrReferenceData)
}
