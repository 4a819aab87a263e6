package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openmeld/meld/internal/importer"
	"github.com/openmeld/meld/internal/models"
	"github.com/openmeld/meld/internal/recommend"
)

// Job function names accepted by the queue.
const (
	JobRecommendMatches      = "recommend_matches"
	JobRecommendAffiliations = "recommend_affiliations"
	JobRecommendGender       = "recommend_gender"
	JobAffiliate             = "affiliate"
	JobUnify                 = "unify"
	JobGenderize             = "genderize"
	JobImportIdentities      = "import_identities"
)

// KnownJobs lists every job function the queue accepts.
var KnownJobs = map[string]bool{
	JobRecommendMatches:      true,
	JobRecommendAffiliations: true,
	JobRecommendGender:       true,
	JobAffiliate:             true,
	JobUnify:                 true,
	JobGenderize:             true,
	JobImportIdentities:      true,
}

// PeriodicJobs lists the job functions a scheduled task may run
// periodically. The recommenders produce unbounded duplicate
// suggestions when replayed, so only the self-applying functions and
// imports qualify.
var PeriodicJobs = map[string]bool{
	JobAffiliate:        true,
	JobUnify:            true,
	JobImportIdentities: true,
}

// decodeArgs binds the loosely-typed job args onto a typed struct
// through a JSON round trip.
func decodeArgs(job *models.Job, out any) error {
	data, err := json.Marshal(job.Args)
	if err != nil {
		return fmt.Errorf("encode args of job %s: %w", job.ID, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode args of job %s: %w", job.ID, err)
	}
	return nil
}

type matchArgs struct {
	UUIDs        []string   `json:"uuids,omitempty"`
	TargetUUIDs  []string   `json:"target_uuids,omitempty"`
	Criteria     []string   `json:"criteria,omitempty"`
	Exclude      *bool      `json:"exclude,omitempty"`
	Strict       *bool      `json:"strict,omitempty"`
	MatchSource  bool       `json:"match_source,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	Verbose      bool       `json:"verbose,omitempty"`
}

// options converts the args to matcher options. Exclusion filtering
// and strict heuristics are on unless the job disables them.
func (a matchArgs) options() recommend.MatchOptions {
	opts := recommend.MatchOptions{
		Criteria:     a.Criteria,
		TargetMKs:    a.TargetUUIDs,
		Exclude:      true,
		Strict:       true,
		MatchSource:  a.MatchSource,
		LastModified: a.LastModified,
		Verbose:      a.Verbose,
	}
	if a.Exclude != nil {
		opts.Exclude = *a.Exclude
	}
	if a.Strict != nil {
		opts.Strict = *a.Strict
	}
	return opts
}

type affiliationArgs struct {
	UUIDs        []string   `json:"uuids,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

type genderArgs struct {
	UUIDs        []string `json:"uuids,omitempty"`
	NoStrictName bool     `json:"no_strict_name,omitempty"`
}

type importArgs struct {
	URL     string         `json:"url"`
	Backend string         `json:"backend,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

type genderResult struct {
	Gender   string `json:"gender"`
	Accuracy int    `json:"accuracy"`
}

func genderResults(recs map[string]*models.Recommendation) map[string]genderResult {
	results := make(map[string]genderResult, len(recs))
	for mk, r := range recs {
		results[mk] = genderResult{Gender: r.Gender, Accuracy: r.GenderAcc}
	}
	return results
}

// RegisterDefaultHandlers wires the engine job functions into a
// worker.
func RegisterDefaultHandlers(w *Worker, rec *recommend.Service, imp *importer.Importer) {
	w.RegisterHandler(JobRecommendMatches, HandlerFunc(func(ctx context.Context, job *models.Job) (*models.JobResult, error) {
		var args matchArgs
		if err := decodeArgs(job, &args); err != nil {
			return nil, err
		}
		matches, err := rec.RecommendMatches(ctx, args.UUIDs, args.options())
		if err != nil {
			return nil, err
		}
		return &models.JobResult{Results: matches}, nil
	}))

	w.RegisterHandler(JobRecommendAffiliations, HandlerFunc(func(ctx context.Context, job *models.Job) (*models.JobResult, error) {
		var args affiliationArgs
		if err := decodeArgs(job, &args); err != nil {
			return nil, err
		}
		orgs, err := rec.RecommendAffiliations(ctx, args.UUIDs, args.LastModified)
		if err != nil {
			return nil, err
		}
		return &models.JobResult{Results: orgs}, nil
	}))

	w.RegisterHandler(JobRecommendGender, HandlerFunc(func(ctx context.Context, job *models.Job) (*models.JobResult, error) {
		var args genderArgs
		if err := decodeArgs(job, &args); err != nil {
			return nil, err
		}
		recs, failures, err := rec.RecommendGender(ctx, args.UUIDs, args.NoStrictName)
		if err != nil {
			return nil, err
		}
		return &models.JobResult{Results: genderResults(recs), Errors: failures}, nil
	}))

	w.RegisterHandler(JobAffiliate, HandlerFunc(func(ctx context.Context, job *models.Job) (*models.JobResult, error) {
		var args affiliationArgs
		if err := decodeArgs(job, &args); err != nil {
			return nil, err
		}
		enrolled, failures, err := rec.Affiliate(ctx, args.UUIDs, args.LastModified)
		if err != nil {
			return nil, err
		}
		return &models.JobResult{Results: enrolled, Errors: failures}, nil
	}))

	w.RegisterHandler(JobUnify, HandlerFunc(func(ctx context.Context, job *models.Job) (*models.JobResult, error) {
		var args matchArgs
		if err := decodeArgs(job, &args); err != nil {
			return nil, err
		}
		merged, failures, err := rec.Unify(ctx, args.UUIDs, args.options())
		if err != nil {
			return nil, err
		}
		return &models.JobResult{Results: merged, Errors: failures}, nil
	}))

	w.RegisterHandler(JobGenderize, HandlerFunc(func(ctx context.Context, job *models.Job) (*models.JobResult, error) {
		var args genderArgs
		if err := decodeArgs(job, &args); err != nil {
			return nil, err
		}
		recs, failures, err := rec.Genderize(ctx, args.UUIDs, args.NoStrictName)
		if err != nil {
			return nil, err
		}
		return &models.JobResult{Results: genderResults(recs), Errors: failures}, nil
	}))

	w.RegisterHandler(JobImportIdentities, HandlerFunc(func(ctx context.Context, job *models.Job) (*models.JobResult, error) {
		var args importArgs
		if err := decodeArgs(job, &args); err != nil {
			return nil, err
		}
		result, err := imp.Import(ctx, args.URL, args.Backend, args.Params)
		if err != nil {
			return nil, err
		}
		return &models.JobResult{Results: result, Errors: result.Errors}, nil
	}))
}
