// Package quantification assembles one subject case: it reduces the label
// volume, aggregates derived regions, normalizes against the reference
// cohorts, scores single regions and persists the result bundle.
package quantification

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"roiquant/internal/logging"
	"roiquant/internal/models"
	"roiquant/pkg/cohort"
	"roiquant/pkg/config"
	"roiquant/pkg/demographics"
	apperr "roiquant/pkg/errors"
	"roiquant/pkg/nifti"
	"roiquant/pkg/roi"
	"roiquant/pkg/volume"
	"roiquant/pkg/zscore"
)

// ICVRegion is the derived-region id of the intracranial volume
const (
	ICVRegion = "702"
	icvLabel  = 702
)

// Params locates the inputs and output of one case
type Params struct {
	// ROIPath is the multi-label segmentation (NIfTI)
	ROIPath string `yaml:"roi"`

	// ICVPaths must hold exactly one intracranial mask
	ICVPaths []string `yaml:"icv"`

	// WMLSPaths holds at most one lesion mask; none means zero lesion volume
	WMLSPaths []string `yaml:"wmls"`

	// DemographicsPath is a .json or .csv demographic record
	DemographicsPath string `yaml:"demographics"`

	// OutputPath names the report the bundle feeds. Artifacts are written
	// next to it and keyed by its base name without the .pdf extension.
	OutputPath string `yaml:"output"`
}

// CaseID derives the artifact key from OutputPath
func (p Params) CaseID() string {
	return strings.TrimSuffix(filepath.Base(p.OutputPath), ".pdf")
}

// OutputDir is the directory artifacts are written to
func (p Params) OutputDir() string {
	return filepath.Dir(p.OutputPath)
}

func (p Params) inputs() map[string]string {
	in := map[string]string{
		"roi":          p.ROIPath,
		"demographics": p.DemographicsPath,
	}
	if len(p.ICVPaths) > 0 {
		in["icv"] = p.ICVPaths[0]
	}
	if len(p.WMLSPaths) > 0 {
		in["wmls"] = p.WMLSPaths[0]
	}
	return in
}

// Bundle is the complete result of one case
type Bundle struct {
	RunID     string
	CaseID    string
	CreatedAt time.Time
	Inputs    map[string]string

	Header models.Header

	// Subject is ICV-adjusted; SubjectUnadjusted keeps the raw composites
	Subject           *models.SubjectRecord
	SubjectUnadjusted *models.SubjectRecord

	// Reference and WMLSReference are this case's sex-filtered, adjusted copies
	Reference     *cohort.Table
	WMLSReference *cohort.Table

	LabelVolumes volume.RegionVolumeMap

	// ROIsByID and ROIsByName are adjusted; the ICV entry holds the raw ICV
	ROIsByID       map[string]float64
	ROIsByName     map[string]float64
	ROIsUnadjusted map[string]float64

	ZScores *zscore.Result

	// Factor is mean(window ICV) / unit scale for the subject
	Factor float64

	Flags []models.Flag

	// Segmentation is kept for the QC snapshot
	Segmentation *models.LabelVolume
}

// Quantifier runs cases against one set of references
type Quantifier struct {
	cfg    *config.Config
	refs   *References
	logger logging.Logger

	normalizer *cohort.Normalizer
	engine     *zscore.Engine

	now   func() time.Time
	runID func() (uuid.UUID, error)
}

// NewQuantifier creates a quantifier. A nil logger discards output.
func NewQuantifier(cfg *config.Config, refs *References, logger logging.Logger) *Quantifier {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	window := cohort.Window{
		HalfWidth: cfg.Cohort.WindowHalfWidth,
		Diagnosis: cfg.Cohort.ControlLabel,
	}
	return &Quantifier{
		cfg:    cfg,
		refs:   refs,
		logger: logger,
		normalizer: cohort.NewNormalizer(window, cfg.Quantification.UnitScale,
			cfg.Cohort.ExcludedColumns, cfg.Cohort.AIPattern, logger),
		engine: zscore.NewEngine(window, cfg.Quantification.UnitScale,
			cfg.Quantification.SingleRegionMaxLabel, refs.Dictionary, logger),
		now:   time.Now,
		runID: uuid.NewV7,
	}
}

// Process computes a case and persists it next to p.OutputPath. Nothing is
// written unless the whole case computed.
func (q *Quantifier) Process(ctx context.Context, p Params) (*Bundle, error) {
	b, err := q.Compute(ctx, p)
	if err != nil {
		return nil, err
	}
	store, err := newStore(p.OutputDir())
	if err != nil {
		return nil, err
	}
	if err := q.Persist(b, store); err != nil {
		return nil, err
	}
	return b, nil
}

// Compute runs every step of a case in memory
func (q *Quantifier) Compute(ctx context.Context, p Params) (*Bundle, error) {
	log := q.logger.With(logging.String("case", p.CaseID()))
	start := q.now()

	if len(p.ICVPaths) != 1 {
		return nil, apperr.Computation("exactly one ICV mask is required, got %d", len(p.ICVPaths))
	}
	if len(p.WMLSPaths) > 1 {
		return nil, apperr.Input("at most one lesion mask is accepted, got %d", len(p.WMLSPaths))
	}

	// Step 1: demographics
	demog, err := demographics.ReadFile(p.DemographicsPath)
	if err != nil {
		return nil, err
	}
	log.Info("demographics parsed",
		logging.String("mrid", demog.MRID),
		logging.Float64("age", demog.Age),
		logging.String("sex", demog.Sex))

	// Step 2: label volumes and masks
	seg, err := nifti.ReadFile(p.ROIPath)
	if err != nil {
		return nil, err
	}
	labels, err := volume.Reduce(seg)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInput, "segmentation %s", p.ROIPath)
	}

	icv, err := q.maskVolume(p.ICVPaths[0])
	if err != nil {
		return nil, err
	}
	if !(icv > 0) {
		return nil, apperr.Computation("ICV mask %s is empty", p.ICVPaths[0])
	}

	wmls := 0.0
	if len(p.WMLSPaths) == 1 {
		if wmls, err = q.maskVolume(p.WMLSPaths[0]); err != nil {
			return nil, err
		}
	}
	log.Info("volumes measured",
		logging.Int("labels", len(labels)),
		logging.Float64("icv", icv),
		logging.Float64("wmls", wmls))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 3: derived regions and composite families
	byID := q.regionsByID(labels)
	byName, unnamed := q.regionsByName(byID)

	subject := models.NewSubjectRecord(demog)
	subject.ICV = icv
	subject.WMLS = wmls
	lookup := roi.Overlay(byID, labels.Foreground())
	for name, v := range roi.Evaluate(q.refs.Families, lookup) {
		subject.Volumes[name] = v
	}
	subject.Volumes[q.cfg.Cohort.WMLSName] = wmls

	flags := append(unnamed, q.undefinedAI(subject)...)

	// Step 4: normalization against private copies of the references
	var wmlsRef *cohort.Table
	if q.refs.WMLS != nil {
		wmlsRef = q.refs.WMLS.FilterSex(demog.Sex)
	}
	norm, err := q.normalizer.Normalize(cohort.Input{
		Subject:       subject,
		Reference:     q.refs.ROI.FilterSex(demog.Sex),
		WMLSReference: wmlsRef,
		RegionsByID:   byID,
		RegionsByName: byName,
		ICVID:         ICVRegion,
		ICVName:       q.icvName(),
	})
	if err != nil {
		return nil, err
	}
	flags = append(flags, norm.Flags...)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 5: z-scores of single regions
	scores, err := q.engine.Score(demog.Age, byID, icv, norm.Reference)
	if err != nil {
		return nil, err
	}
	flags = append(flags, scores.Flags...)

	id, err := q.runID()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "generate run id")
	}

	b := &Bundle{
		RunID:             id.String(),
		CaseID:            p.CaseID(),
		CreatedAt:         q.now(),
		Inputs:            p.inputs(),
		Header:            models.NewHeader(demog, q.now()),
		Subject:           norm.Subject,
		SubjectUnadjusted: subject,
		Reference:         norm.Reference,
		WMLSReference:     norm.WMLSReference,
		LabelVolumes:      labels,
		ROIsByID:          norm.RegionsByID,
		ROIsByName:        norm.RegionsByName,
		ROIsUnadjusted:    byID,
		ZScores:           scores,
		Factor:            norm.Factor,
		Flags:             flags,
		Segmentation:      seg,
	}

	log.Info("case computed",
		logging.Int("zscores", len(scores.Scores)),
		logging.Int("flags", len(flags)),
		logging.Duration("elapsed", q.now().Sub(start)))
	return b, nil
}

func (q *Quantifier) maskVolume(path string) (float64, error) {
	mask, err := nifti.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := volume.MaskVolume(mask)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindInput, "mask %s", path)
	}
	return v, nil
}

// regionsByID holds every foreground label and every derived region
func (q *Quantifier) regionsByID(labels volume.RegionVolumeMap) map[string]float64 {
	out := make(map[string]float64, len(labels)+len(q.refs.Composition))
	for label, v := range labels.Foreground() {
		out[strconv.Itoa(label)] = v
	}
	for id, v := range q.refs.Composition.Aggregate(roi.FromRegions(labels)) {
		out[id] = v
	}
	return out
}

// regionsByName renames ids through the dictionary. Ids without a name are
// left out and flagged.
func (q *Quantifier) regionsByName(byID map[string]float64) (map[string]float64, []models.Flag) {
	out := make(map[string]float64, len(byID))
	var flags []models.Flag
	for _, key := range sortedKeys(byID) {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		name, ok := q.refs.Dictionary.Name(id)
		if !ok {
			flags = append(flags, models.Flag{
				Kind:    models.FlagUnresolvedLabel,
				Scope:   "regions",
				Region:  key,
				Message: fmt.Sprintf("label %d is not in the ROI dictionary", id),
			})
			continue
		}
		out[name] = byID[key]
	}
	return out, flags
}

func (q *Quantifier) icvName() string {
	name, _ := q.refs.Dictionary.Name(icvLabel)
	return name
}

func (q *Quantifier) undefinedAI(s *models.SubjectRecord) []models.Flag {
	var flags []models.Flag
	for _, f := range q.refs.Families {
		if !f.Bilateral() {
			continue
		}
		if math.IsNaN(s.Volumes[f.AIName()]) {
			flags = append(flags, models.Flag{
				Kind:    models.FlagUndefinedAI,
				Scope:   "subject",
				Region:  f.AIName(),
				Message: fmt.Sprintf("%s and %s are both zero", f.LeftName(), f.RightName()),
			})
		}
	}
	return flags
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
