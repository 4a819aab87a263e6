package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/openmeld/meld/internal/models"
)

func TestDecodeMatchArgsDefaults(t *testing.T) {
	job := models.NewJob(JobRecommendMatches, "default", "default", nil)

	var args matchArgs
	if err := decodeArgs(job, &args); err != nil {
		t.Fatalf("decode: %v", err)
	}
	opts := args.options()
	if !opts.Exclude || !opts.Strict {
		t.Fatalf("exclusion and strict matching must default on, got %+v", opts)
	}
	if opts.Verbose || opts.MatchSource {
		t.Fatalf("verbose and match_source must default off, got %+v", opts)
	}
}

func TestDecodeMatchArgsOverrides(t *testing.T) {
	job := models.NewJob(JobUnify, "default", "default", map[string]any{
		"uuids":         []string{"a", "b"},
		"target_uuids":  []string{"c"},
		"criteria":      []string{"email"},
		"exclude":       false,
		"strict":        false,
		"match_source":  true,
		"last_modified": "2024-06-01T00:00:00Z",
	})

	var args matchArgs
	if err := decodeArgs(job, &args); err != nil {
		t.Fatalf("decode: %v", err)
	}
	opts := args.options()
	if opts.Exclude || opts.Strict || !opts.MatchSource {
		t.Fatalf("overrides not applied: %+v", opts)
	}
	if len(args.UUIDs) != 2 || len(opts.Criteria) != 1 || opts.Criteria[0] != "email" {
		t.Fatalf("args not decoded: %+v", args)
	}
	if len(opts.TargetMKs) != 1 || opts.TargetMKs[0] != "c" {
		t.Fatalf("target_uuids not decoded: %+v", opts.TargetMKs)
	}
	want := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if opts.LastModified == nil || !opts.LastModified.Equal(want) {
		t.Fatalf("last_modified not decoded: %v", opts.LastModified)
	}
}

func TestDecodeImportArgs(t *testing.T) {
	job := models.NewJob(JobImportIdentities, "default", "default", map[string]any{
		"url":     "s3://bucket/export.json",
		"backend": "s3",
		"params":  map[string]any{"update_from": "2024-01-01T00:00:00Z"},
	})

	var args importArgs
	if err := decodeArgs(job, &args); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if args.URL != "s3://bucket/export.json" || args.Backend != "s3" {
		t.Fatalf("args not decoded: %+v", args)
	}
	if args.Params["update_from"] != "2024-01-01T00:00:00Z" {
		t.Fatalf("params not decoded: %+v", args.Params)
	}
}

func TestPeriodicJobs(t *testing.T) {
	for _, fn := range []string{JobAffiliate, JobUnify, JobImportIdentities} {
		if !PeriodicJobs[fn] {
			t.Errorf("%s must be allowed to run periodically", fn)
		}
	}
	for _, fn := range []string{JobRecommendMatches, JobRecommendAffiliations, JobRecommendGender, JobGenderize} {
		if PeriodicJobs[fn] {
			t.Errorf("%s must not run periodically", fn)
		}
	}
}

func TestHandlerFuncAdapter(t *testing.T) {
	called := false
	h := HandlerFunc(func(ctx context.Context, job *models.Job) (*models.JobResult, error) {
		called = true
		return &models.JobResult{Results: job.FuncName}, nil
	})
	result, err := h.Handle(context.Background(), models.NewJob("noop", "default", "default", nil))
	if err != nil || !called {
		t.Fatalf("handler not invoked: %v", err)
	}
	if result.Results != "noop" {
		t.Fatalf("unexpected result: %+v", result)
	}
}
