package resolvermodule

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/types"
)

// Sentinel errors the resolver state machine branches on.
var (
	// ErrQuotaExceeded marks a provider rejection that exhausts the key,
	// distinguishable from ordinary request failures.
	ErrQuotaExceeded = stderrors.New("search quota exceeded")

	// ErrNoResults marks a well-formed response with zero candidates.
	// Rotating keys cannot change this outcome.
	ErrNoResults = stderrors.New("search returned no results")
)

// PrimarySearcher queries the quota-metered primary provider with one
// specific credential.
type PrimarySearcher interface {
	Search(ctx context.Context, cred Credential, identity types.TrackIdentity) (*types.SourceReference, error)
}

// searchClient talks to a YouTube Data style search endpoint.
type searchClient struct {
	endpoint   string
	maxResults int
	client     *http.Client
}

func newSearchClient(cfg config.SearchConfig) *searchClient {
	return &searchClient{
		endpoint:   cfg.Endpoint,
		maxResults: cfg.MaxResults,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type searchErrorResponse struct {
	Error struct {
		Code   int    `json:"code"`
		Errors []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

func (c *searchClient) Search(ctx context.Context, cred Credential, identity types.TrackIdentity) (*types.SourceReference, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("type", "video")
	q.Set("maxResults", fmt.Sprintf("%d", c.maxResults))
	q.Set("q", identity.Query())
	q.Set("key", cred.Secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		if isQuotaRejection(resp.StatusCode, body) {
			return nil, ErrQuotaExceeded
		}
		return nil, fmt.Errorf("search provider returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("malformed search response: %w", err)
	}
	if len(parsed.Items) == 0 || parsed.Items[0].ID.VideoID == "" {
		return nil, ErrNoResults
	}

	return &types.SourceReference{
		ProviderTrackID:  parsed.Items[0].ID.VideoID,
		ResolutionMethod: types.ResolutionPrimaryAPI,
	}, nil
}

// isQuotaRejection distinguishes quota exhaustion from other 403-class
// rejections by the provider's structured error reason.
func isQuotaRejection(status int, body []byte) bool {
	if status != http.StatusForbidden && status != http.StatusTooManyRequests {
		return false
	}
	if status == http.StatusTooManyRequests {
		return true
	}

	var parsed searchErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, e := range parsed.Error.Errors {
			switch e.Reason {
			case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded":
				return true
			}
		}
	}
	return strings.Contains(string(body), "quotaExceeded")
}
