package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

// Oracle answers gender lookups for a first name.
type Oracle interface {
	Gender(ctx context.Context, name string) (gender string, acc int, err error)
}

// HTTPOracle queries a genderize-style HTTP API.
type HTTPOracle struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPOracle creates an oracle against the given API endpoint.
func NewHTTPOracle(baseURL, apiKey string) *HTTPOracle {
	return &HTTPOracle{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Gender resolves the likely gender of a first name. An unknown name
// yields a NotFound error.
func (o *HTTPOracle) Gender(ctx context.Context, name string) (string, int, error) {
	q := url.Values{"name": {name}}
	if o.APIKey != "" {
		q.Set("apikey", o.APIKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("gender oracle returned status %d", resp.StatusCode)
	}

	var body struct {
		Gender      *string `json:"gender"`
		Probability float64 `json:"probability"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, fmt.Errorf("decode gender response: %w", err)
	}
	if body.Gender == nil || *body.Gender == "" {
		return "", 0, meld.NotFoundf("no gender known for %q", name)
	}
	acc := int(math.Round(body.Probability * 100))
	if acc < 1 {
		acc = 1
	}
	return *body.Gender, acc, nil
}

// RecommendGender proposes a gender for each individual's profile by
// asking the oracle about the first name. Profiles without a usable
// full name are skipped unless noStrictName is set. Failed lookups are
// reported per individual without aborting the run.
func (s *Service) RecommendGender(ctx context.Context, mks []string, noStrictName bool) (map[string]*models.Recommendation, []string, error) {
	if s.oracle == nil {
		return nil, nil, meld.JobErrorf("no gender oracle configured")
	}

	store, err := s.store(ctx)
	if err != nil {
		return nil, nil, err
	}

	if len(mks) == 0 {
		mks, err = store.IndividualMKs(ctx, nil)
		if err != nil {
			return nil, nil, err
		}
	}
	sort.Strings(mks)

	results := make(map[string]*models.Recommendation)
	var failures []string
	for _, mk := range mks {
		profile, err := store.GetProfile(ctx, mk)
		if err != nil {
			if meld.IsNotFound(err) {
				failures = append(failures, err.Error())
				continue
			}
			return nil, nil, err
		}
		if !profile.HasName() {
			continue
		}
		name := strings.TrimSpace(*profile.Name)
		if !noStrictName && !fullName(name) {
			continue
		}
		first := strings.Fields(name)[0]

		gender, acc, err := s.oracle.Gender(ctx, first)
		if err != nil {
			if meld.IsNotFound(err) {
				continue
			}
			failures = append(failures, fmt.Sprintf("%s: %v", mk, err))
			continue
		}
		rec := models.NewGenderRecommendation(mk, gender, acc)
		if err := store.CreateRecommendation(ctx, rec); err != nil {
			return nil, nil, err
		}
		results[mk] = rec
	}

	s.logger.Info().
		Int("individuals", len(results)).
		Int("failures", len(failures)).
		Msg("gender recommendations computed")
	return results, failures, nil
}
