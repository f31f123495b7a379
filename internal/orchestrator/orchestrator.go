// Package orchestrator implements the query orchestrator (C6): parsing the
// request envelope, calling the external preprocessor, running a timed
// search over the loaded metric tree, paginating, looking up sources, and
// serializing the response per the requested format.
package orchestrator

import (
	"context"
	"time"

	"github.com/texsearch/texsearch/internal/analytics"
	"github.com/texsearch/texsearch/internal/docstore"
	"github.com/texsearch/texsearch/internal/forest"
	"github.com/texsearch/texsearch/internal/metrictree"
	apperrors "github.com/texsearch/texsearch/pkg/errors"
	"github.com/texsearch/texsearch/pkg/logger"
	"github.com/texsearch/texsearch/pkg/tracing"
)

// searchPageSize is the page size used internally when draining C4; it is
// unrelated to the caller's startAt/endAt window.
const searchPageSize = 50

// Orchestrator answers queries against a fixed, read-only snapshot of the
// metric tree. It never mutates tree; that is the reconciler's job. All
// logging goes through logger.FromContext rather than a stored *slog.Logger,
// so every line a query's compute path emits carries that query's request
// ID and search term (attached to ctx once in Handle).
type Orchestrator struct {
	tree   *metrictree.Tree
	docs   *docstore.Client
	cache  *ResultCache
	events *analytics.Collector
}

// New builds an Orchestrator over tree. cache and events may be nil to
// disable caching and telemetry respectively.
func New(tree *metrictree.Tree, docs *docstore.Client, cache *ResultCache, events *analytics.Collector) *Orchestrator {
	return &Orchestrator{
		tree:   tree,
		docs:   docs,
		cache:  cache,
		events: events,
	}
}

// queryStats carries the telemetry a single Handle call accumulates, even
// across a cache hit (which skips compute but still reports from the
// cached totals).
type queryStats struct {
	cutoff    int
	totalHits int
	returned  int
	timedOut  bool
}

// Handle answers one already-parsed Request, handling caching, timing, and
// telemetry. It never returns a non-nil error: every failure is reflected
// in the returned Response per the external protocol.
func (o *Orchestrator) Handle(ctx context.Context, req Request, requestID string) Response {
	start := time.Now()
	cacheHit := false
	var stats queryStats

	ctx = logger.WithRequestID(ctx, requestID)
	ctx = logger.WithQuery(ctx, req.SearchTerm)
	ctx, root := tracing.StartSpan(ctx, "orchestrator.handle", requestID)

	resp, err := o.cacheLookup(ctx, req, &cacheHit, &stats)
	if err != nil {
		stats.timedOut = apperrors.ClassifyKind(err) == apperrors.KindTimeout
		resp = responseForError(err)
	}
	root.SetAttr("cache_hit", cacheHit)
	root.SetAttr("total_hits", stats.totalHits)
	root.SetAttr("returned", stats.returned)
	root.End()
	// Only a failed or timed-out query pays for a span log; a healthy query
	// loop can run many requests per second and a span line per request
	// would dwarf the rest of the log volume for no operational benefit.
	if err != nil {
		root.Log()
	}

	o.publishSearchEvent(req, requestID, stats, cacheHit, start)
	return resp
}

func (o *Orchestrator) cacheLookup(ctx context.Context, req Request, cacheHit *bool, stats *queryStats) (Response, error) {
	compute := func() (Response, error) {
		resp, s, err := o.compute(ctx, req)
		*stats = s
		return resp, err
	}
	if o.cache == nil {
		return compute()
	}
	before, _ := o.cache.Stats()
	resp, err := o.cache.GetOrCompute(ctx, req, compute)
	after, _ := o.cache.Stats()
	*cacheHit = after > before && err == nil
	if *cacheHit && resp.JSON != nil {
		stats.returned = len(resp.JSON.Results)
		stats.totalHits = stats.returned
	}
	return resp, err
}

func (o *Orchestrator) compute(ctx context.Context, req Request) (Response, queryStats, error) {
	ctx, span := tracing.StartChildSpan(ctx, "orchestrator.compute")
	defer span.End()

	preprocessCtx, cancel := context.WithTimeout(ctx, durationFromSeconds(req.PreprocessorTimeout))
	wf, err := o.docs.Preprocess(preprocessCtx, req.SearchTerm)
	cancel()
	if err != nil {
		return Response{}, queryStats{}, err
	}

	interner := forest.NewInterner()
	queryTokens := wf.ToForest(interner)
	target := forest.IndexNode{Tokens: queryTokens, Suffixes: forest.Suffixes(queryTokens)}
	span.SetAttr("forest_tokens", forest.TopLevelLength(queryTokens))
	span.SetAttr("forest_suffixes", len(target.Suffixes))

	searchCtx, cancel := context.WithTimeout(ctx, durationFromSeconds(req.SearchTimeoutSec))
	defer cancel()
	matches, cutoff, err := o.runSearch(searchCtx, target, req)
	span.SetAttr("cutoff", cutoff)
	if err != nil {
		return Response{}, queryStats{cutoff: cutoff}, err
	}

	results := make([]RankedResult, 0, len(matches))
	for _, m := range matches {
		source, err := o.docs.LookupSource(ctx, m.DocID, m.FragmentID)
		if err != nil {
			logger.FromContext(ctx).Warn("source lookup failed, dropping match", "doc_id", m.DocID, "fragment_id", m.FragmentID, "error", err)
			continue
		}
		results = append(results, RankedResult{DocID: m.DocID, Distance: m.Distance, Source: source})
	}

	stats := queryStats{cutoff: cutoff, totalHits: len(matches), returned: len(results)}
	span.SetAttr("total_hits", stats.totalHits)
	span.SetAttr("returned", stats.returned)
	if req.Format == "json" {
		return jsonResponse(req.SearchTerm, results), stats, nil
	}
	return xmlResponse(req.SearchTerm, results), stats, nil
}

// runSearch drains C4 page by page, applying the (startAt, endAt) window,
// checking ctx between pages so a wall-clock timeout abandons the search
// without having mutated anything.
func (o *Orchestrator) runSearch(ctx context.Context, target forest.IndexNode, req Request) ([]metrictree.Match, int, error) {
	search := metrictree.NewSearch(o.tree, target)
	var all []metrictree.Match

	for {
		select {
		case <-ctx.Done():
			return nil, search.Cutoff(), apperrors.Timeout("search exceeded its deadline: %v", ctx.Err())
		default:
		}

		page, done := search.Next(searchPageSize)
		all = append(all, page...)

		if req.EndAtSet && len(all) >= req.EndAt {
			break
		}
		if done {
			break
		}
	}

	lo := req.StartAt - 1
	if lo > len(all) {
		lo = len(all)
	}
	hi := len(all)
	if req.EndAtSet && req.EndAt < hi {
		hi = req.EndAt
	}
	if lo > hi {
		lo = hi
	}
	return all[lo:hi], search.Cutoff(), nil
}

func (o *Orchestrator) publishSearchEvent(req Request, requestID string, stats queryStats, cacheHit bool, start time.Time) {
	if o.events == nil {
		return
	}
	o.events.Track(analytics.SearchEvent{
		Type:      analytics.EventSearch,
		Query:     req.SearchTerm,
		Cutoff:    stats.cutoff,
		TotalHits: stats.totalHits,
		Returned:  stats.returned,
		LatencyMs: time.Since(start).Milliseconds(),
		CacheHit:  cacheHit,
		TimedOut:  stats.timedOut,
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

func responseForError(err error) Response {
	switch apperrors.ClassifyKind(err) {
	case apperrors.KindBadRequest:
		return badRequestResponse()
	case apperrors.KindTimeout:
		return timeoutResponse()
	default:
		return internalErrorResponse()
	}
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
