// Package docstore is the HTTP collaborator for the external document
// store: the paged change feed the reconciler polls, and the LaTeX
// preprocessor the query orchestrator calls before building a query forest.
// Both calls are wrapped in retry + circuit breaker + timeout per
// pkg/resilience, mirroring how the teacher wraps its own outbound calls.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/texsearch/texsearch/pkg/errors"
	"github.com/texsearch/texsearch/pkg/resilience"
)

// ChangeRow is one entry of the paged changes feed:
// {"id", "key": seq, "value": {"deleted": bool}, "doc": {...}}.
type ChangeRow struct {
	ID    string `json:"id"`
	Seq   int64  `json:"key"`
	Value struct {
		Deleted bool `json:"deleted"`
	} `json:"value"`
	Doc *DocPayload `json:"doc"`
}

// changesResponse is the feed envelope: {"rows": [...]}.
type changesResponse struct {
	Rows []ChangeRow `json:"rows"`
}

// DocPayload is one document's fragments as the document store represents
// them: a doi and a list of raw LaTeX sources, one per fragment, matching
// the shape consumed by the original indexing client.
type DocPayload struct {
	DocID   string   `json:"doi"`
	Sources []string `json:"source"`
}

// FragmentIDFor derives a stable fragment_id for the i'th source string of
// a document: opaque, but deterministic across reconciliation runs so a
// repeated fetch of the same document produces the same fragment set.
func FragmentIDFor(docID string, i int) string {
	return fmt.Sprintf("%s#%d", docID, i)
}

// Client talks to the external document store over HTTP. It keeps two
// separate resilience profiles rather than one shared across every call:
// Preprocess and LookupSource sit on the orchestrator's per-query hot path
// (Preprocess under the request's preprocessorTimeout, LookupSource under
// only the client's own HTTP timeout), so they trip their breaker fast and
// barely retry — a retry there just adds to the query's latency. FetchChanges runs only from the reconciler's
// background batch loop, with no human waiting on it, so it tolerates more
// attempts and a longer cool-down before giving up on the document store.
type Client struct {
	baseURL         string
	preprocessorURL string
	httpClient      *http.Client
	queryBreaker    *resilience.CircuitBreaker
	queryRetryCfg   resilience.RetryConfig
	batchBreaker    *resilience.CircuitBreaker
	batchRetryCfg   resilience.RetryConfig
	timeout         time.Duration
	fallback        *LocalPreprocessor
}

// Config controls Client construction.
type Config struct {
	BaseURL         string
	PreprocessorURL string
	Timeout         time.Duration
}

// New builds a Client. When cfg.PreprocessorURL is empty, Preprocess falls
// back to a built-in LocalPreprocessor instead of making an HTTP call —
// useful for offline CLI use and for tests.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:         cfg.BaseURL,
		preprocessorURL: cfg.PreprocessorURL,
		httpClient:      &http.Client{Timeout: timeout},
		queryBreaker: resilience.NewCircuitBreaker("docstore-query", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     10 * time.Second,
		}),
		queryRetryCfg: resilience.RetryConfig{
			MaxAttempts:  2,
			InitialDelay: 25 * time.Millisecond,
			MaxDelay:     200 * time.Millisecond,
		},
		batchBreaker: resilience.NewCircuitBreaker("docstore-batch", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		}),
		batchRetryCfg: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		timeout:  timeout,
		fallback: NewLocalPreprocessor(),
	}
}

// Breakers returns both circuit breakers the Client drives, for callers
// that want to export their state (e.g. cmd/index's metrics poller).
func (c *Client) Breakers() []*resilience.CircuitBreaker {
	return []*resilience.CircuitBreaker{c.queryBreaker, c.batchBreaker}
}

// FetchChanges fetches up to limit change rows with sequence in
// (since, since+limit], ordered by sequence, from
// GET {baseURL}/_texsearch/_changes?since=<since>&limit=<limit>.
func (c *Client) FetchChanges(ctx context.Context, since int64, limit int) ([]ChangeRow, error) {
	u := fmt.Sprintf("%s/_texsearch/_changes?since=%d&limit=%d", c.baseURL, since, limit)

	var result changesResponse
	err := resilience.WithTimeout(ctx, c.timeout, "docstore.fetch_changes", func(ctx context.Context) error {
		return c.batchBreaker.Execute(func() error {
			return resilience.Retry(ctx, "docstore.fetch_changes", c.batchRetryCfg, func() error {
				return c.getJSON(ctx, u, &result)
			})
		})
	})
	if err != nil {
		return nil, apperrors.Upstream("fetching changes since %d: %v", since, err)
	}
	return result.Rows, nil
}

// Preprocess normalizes a raw LaTeX source string into a token forest. If no
// preprocessor URL was configured, it uses the built-in LocalPreprocessor
// instead of making an HTTP call.
func (c *Client) Preprocess(ctx context.Context, latex string) (*WireForest, error) {
	if c.preprocessorURL == "" {
		return c.fallback.Preprocess(latex)
	}

	u := fmt.Sprintf("%s/preprocess?latex=%s", c.preprocessorURL, url.QueryEscape(latex))
	var wf WireForest
	err := resilience.WithTimeout(ctx, c.timeout, "docstore.preprocess", func(ctx context.Context) error {
		return c.queryBreaker.Execute(func() error {
			return resilience.Retry(ctx, "docstore.preprocess", c.queryRetryCfg, func() error {
				return c.getJSON(ctx, u, &wf)
			})
		})
	})
	if err != nil {
		return nil, apperrors.Upstream("preprocessing %q: %v", latex, err)
	}
	return &wf, nil
}

// LookupSource fetches the raw source string for one fragment, used by the
// orchestrator to materialize search results. A naive implementation issues
// one document fetch and scans its fragments; callers that need many
// lookups for the same doc should batch them externally.
func (c *Client) LookupSource(ctx context.Context, docID, fragmentID string) (string, error) {
	u := fmt.Sprintf("%s/documents/%s", c.baseURL, url.PathEscape(docID))
	var payload DocPayload
	err := resilience.WithTimeout(ctx, c.timeout, "docstore.lookup_source", func(ctx context.Context) error {
		return c.queryBreaker.Execute(func() error {
			return resilience.Retry(ctx, "docstore.lookup_source", c.queryRetryCfg, func() error {
				return c.getJSON(ctx, u, &payload)
			})
		})
	})
	if err != nil {
		return "", apperrors.Upstream("looking up source for %s/%s: %v", docID, fragmentID, err)
	}
	for i, src := range payload.Sources {
		if FragmentIDFor(payload.DocID, i) == fragmentID {
			return src, nil
		}
	}
	return "", apperrors.Upstream("fragment %s not found in document %s", fragmentID, docID)
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ParseSeq parses a decimal change-sequence number, as received from CLI
// flags or persisted state.
func ParseSeq(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
