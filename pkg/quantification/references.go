package quantification

import (
	"time"

	"roiquant/internal/logging"
	"roiquant/pkg/cohort"
	"roiquant/pkg/config"
	apperr "roiquant/pkg/errors"
	"roiquant/pkg/roi"
)

// References holds the static inputs shared by every case. Nothing in this
// package modifies them after LoadReferences returns, so one instance may
// serve concurrent cases.
type References struct {
	Dictionary  *roi.Dictionary
	Composition roi.CompositionTable
	Families    []roi.Family

	// ROI is the deduplicated reference cohort with family columns added
	ROI *cohort.Table

	// WMLS is the deduplicated lesion-volume cohort
	WMLS *cohort.Table
}

// ROISchema describes the harmonized ROI reference file
func ROISchema(cfg *config.Config) cohort.Schema {
	c := cfg.Cohort
	return cohort.Schema{
		SubjectIDColumn: c.SubjectIDColumn,
		AgeColumn:       c.AgeColumn,
		SexColumn:       c.SexColumn,
		DiagnosisColumn: c.DiagnosisColumn,
		DateColumn:      c.DateColumn,
		TextColumns:     c.TextColumns,
		ICVColumn:       c.ICVColumn,
	}
}

// WMLSSchema describes the lesion reference file
func WMLSSchema(cfg *config.Config) cohort.Schema {
	s := ROISchema(cfg)
	s.ICVColumn = cfg.Cohort.WMLSICVColumn
	s.SexCodes = cfg.Cohort.SexCodes
	s.Rename = map[string]string{cfg.Cohort.WMLSColumn: cfg.Cohort.WMLSName}
	return s
}

// LoadReferences reads and validates every reference file named by cfg
func LoadReferences(cfg *config.Config, logger logging.Logger) (*References, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	start := time.Now()
	refs := &References{}

	var err error
	if refs.Dictionary, err = roi.LoadDictionary(cfg.ReferencePath(cfg.References.Dictionary)); err != nil {
		return nil, err
	}
	if refs.Composition, err = roi.LoadCompositionTable(cfg.ReferencePath(cfg.References.Mapping)); err != nil {
		return nil, err
	}
	if err := refs.Composition.Validate(refs.Dictionary); err != nil {
		return nil, err
	}
	refs.Families = roi.StandardFamilies(refs.Dictionary, cfg.Quantification.SingleRegionMaxLabel)

	roiTable, dropped, err := cohort.Load(cfg.ReferencePath(cfg.References.ROITable), ROISchema(cfg))
	if err != nil {
		return nil, err
	}
	if roiTable.Len() == 0 {
		return nil, apperr.ReferenceData("ROI reference table has no complete rows")
	}
	roiTable.AddColumns(func(l roi.Lookup) map[string]float64 {
		return roi.Evaluate(refs.Families, l)
	})
	refs.ROI = roiTable
	logger.Info("loaded ROI reference",
		logging.Int("rows", roiTable.Len()),
		logging.Int("columns", len(roiTable.Columns)),
		logging.Int("dropped", dropped))

	wmlsTable, dropped, err := cohort.Load(cfg.ReferencePath(cfg.References.WMLSTable), WMLSSchema(cfg))
	if err != nil {
		return nil, err
	}
	refs.WMLS = wmlsTable
	logger.Info("loaded WMLS reference",
		logging.Int("rows", wmlsTable.Len()),
		logging.Int("dropped", dropped))

	logger.Debug("references ready", logging.Duration("elapsed", time.Since(start)))
	return refs, nil
}
