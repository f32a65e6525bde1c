package quantification

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"roiquant/internal/logging"
	apperr "roiquant/pkg/errors"
)

// BatchManifest lists the cases of a batch run
type BatchManifest struct {
	Cases []Params `yaml:"cases"`
}

// LoadBatchManifest reads a YAML batch manifest
func LoadBatchManifest(path string) (*BatchManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInput, "read batch manifest %s", path)
	}
	var m BatchManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInput, "parse batch manifest %s", path)
	}
	if len(m.Cases) == 0 {
		return nil, apperr.Input("batch manifest %s lists no cases", path)
	}
	return &m, nil
}

// CaseResult is the outcome of one batch case
type CaseResult struct {
	CaseID  string
	RunID   string
	Err     error
	Elapsed time.Duration
}

// RunBatch processes cases with at most limit running at once. A failing
// case is recorded in its result and does not stop the others. Results are
// returned in input order.
func (q *Quantifier) RunBatch(ctx context.Context, cases []Params, limit int) []CaseResult {
	results := make([]CaseResult, len(cases))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, p := range cases {
		i, p := i, p
		g.Go(func() error {
			start := time.Now()
			res := CaseResult{CaseID: p.CaseID()}
			b, err := q.Process(ctx, p)
			if err != nil {
				res.Err = err
				q.logger.Error("case failed",
					logging.String("case", p.CaseID()),
					logging.String("kind", string(apperr.KindOf(err))),
					logging.Err(err))
			} else {
				res.RunID = b.RunID
			}
			res.Elapsed = time.Since(start)
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Failed counts results carrying an error
func Failed(results []CaseResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
