package quantification

import (
	"strconv"

	"roiquant/internal/logging"
	"roiquant/internal/models"
	"roiquant/pkg/artifacts"
	"roiquant/pkg/tabular"
	"roiquant/pkg/visualization"
)

func newStore(dir string) (*artifacts.FileStore, error) {
	return artifacts.NewFileStore(dir)
}

// Persist writes every artifact of b, then the manifest listing them. When
// any write fails the artifacts already written are removed again, so a
// case either has a complete bundle or nothing.
func (q *Quantifier) Persist(b *Bundle, store artifacts.Store) (err error) {
	put := []struct {
		name string
		v    interface{}
	}{
		{artifacts.Subject, artifacts.FromSubject(b.Subject)},
		{artifacts.CompositesUnadjusted, artifacts.FromSubject(b.SubjectUnadjusted)},
		{artifacts.Reference, artifacts.FromTable(b.Reference)},
		{artifacts.Header, b.Header},
		{artifacts.ZScoresByID, models.Floats(b.ZScores.ByID())},
		{artifacts.ZScoresByName, models.Floats(b.ZScores.ByName())},
		{artifacts.ZScoreDetails, b.ZScores.Scores},
		{artifacts.ROIsByID, models.Floats(b.ROIsByID)},
		{artifacts.ROIsByName, models.Floats(b.ROIsByName)},
		{artifacts.ROIsUnadjusted, models.Floats(b.ROIsUnadjusted)},
		{artifacts.LabelVolumes, artifacts.FromRegions(b.LabelVolumes)},
		{artifacts.Flags, flagsOrEmpty(b.Flags)},
	}
	if b.WMLSReference != nil {
		put = append(put, struct {
			name string
			v    interface{}
		}{artifacts.WMLSReference, artifacts.FromTable(b.WMLSReference)})
	}

	manifest := artifacts.CaseManifest{
		RunID:     b.RunID,
		CaseID:    b.CaseID,
		CreatedAt: b.CreatedAt,
		Inputs:    b.Inputs,
		FlagCount: len(b.Flags),
		Factor:    models.Float(b.Factor),
	}

	var written [][2]string
	defer func() {
		if err == nil {
			return
		}
		for _, w := range written {
			if derr := store.Delete(b.CaseID, w[0], w[1]); derr != nil {
				q.logger.Warn("failed to remove partial artifact",
					logging.String("case", b.CaseID),
					logging.String("artifact", w[0]),
					logging.Err(derr))
			}
		}
	}()
	record := func(name, ext string) {
		written = append(written, [2]string{name, ext})
		manifest.Artifacts = append(manifest.Artifacts, artifacts.ManifestEntry{Name: name, File: b.CaseID + "_" + name + "." + ext})
	}

	for _, a := range put {
		if err = store.Put(b.CaseID, a.name, a.v); err != nil {
			return err
		}
		record(a.name, "json")
	}

	if q.cfg.Output.Workbook {
		if err = store.PutFile(b.CaseID, artifacts.Summary, "xlsx", func(path string) error {
			wb, err := summaryWorkbook(b)
			if err != nil {
				return err
			}
			return wb.SaveAs(path)
		}); err != nil {
			return err
		}
		record(artifacts.Summary, "xlsx")
	}

	if q.cfg.Output.QCSnapshot && b.Segmentation != nil {
		viewer := visualization.NewViewer(b.Segmentation)
		if err = store.PutFile(b.CaseID, artifacts.QCAxial, "png", viewer.SaveAxialSnapshot); err != nil {
			return err
		}
		record(artifacts.QCAxial, "png")
	}

	return store.Put(b.CaseID, artifacts.Manifest, manifest)
}

func flagsOrEmpty(flags []models.Flag) []models.Flag {
	if flags == nil {
		return []models.Flag{}
	}
	return flags
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}

// summaryWorkbook lays the header, composites and z-scores out as sheets
func summaryWorkbook(b *Bundle) (*tabular.Workbook, error) {
	wb := tabular.NewWorkbook()

	header := &tabular.Table{Headers: []string{"Field", "Value"}}
	for _, kv := range [][2]string{
		{"MRID", b.Header.MRID},
		{"Age", b.Header.Age},
		{"Sex", b.Header.Sex},
		{"ExamDate", b.Header.ExamDate},
		{"ReportDate", b.Header.ReportDate},
		{"RunID", b.RunID},
	} {
		header.Rows = append(header.Rows, tabular.Row{"Field": kv[0], "Value": kv[1]})
	}

	composites := &tabular.Table{Headers: []string{"Region", "Unadjusted", "Adjusted"}}
	for _, name := range b.SubjectUnadjusted.VolumeNames() {
		composites.Rows = append(composites.Rows, tabular.Row{
			"Region":     name,
			"Unadjusted": formatFloat(b.SubjectUnadjusted.Volumes[name]),
			"Adjusted":   formatFloat(b.Subject.Volumes[name]),
		})
	}

	scores := &tabular.Table{Headers: []string{"ID", "Region", "Raw", "Corrected", "Z", "Percentile", "WindowN", "WindowMean", "WindowStd"}}
	for _, s := range b.ZScores.Scores {
		scores.Rows = append(scores.Rows, tabular.Row{
			"ID":         s.ID,
			"Region":     s.Name,
			"Raw":        formatFloat(float64(s.Raw)),
			"Corrected":  formatFloat(float64(s.Corrected)),
			"Z":          formatFloat(float64(s.Z)),
			"Percentile": formatFloat(float64(s.Percentile)),
			"WindowN":    strconv.Itoa(s.WindowCount),
			"WindowMean": formatFloat(float64(s.WindowMean)),
			"WindowStd":  formatFloat(float64(s.WindowStd)),
		})
	}

	for _, sheet := range []struct {
		name string
		t    *tabular.Table
	}{{"Header", header}, {"Composites", composites}, {"ZScores", scores}} {
		if err := wb.AddSheet(sheet.name, sheet.t); err != nil {
			return nil, err
		}
	}
	return wb, nil
}
