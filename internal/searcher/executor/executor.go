package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/matcher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

const (
	DefaultLimit      = 20
	DefaultMaxResults = 100
)

// Request is one search. Filter and FilterNames restrict the search to the
// named documents; when both are empty every document is searched.
type Request struct {
	Query       string   `json:"query"`
	Limit       int      `json:"limit,omitempty"`
	Filter      []int    `json:"filter,omitempty"`
	FilterNames []string `json:"filterNames,omitempty"`
}

type Response struct {
	Query        string                `json:"query"`
	Terms        []string              `json:"terms"`
	ExcludeTerms []string              `json:"excludeTerms,omitempty"`
	TotalHits    int                   `json:"totalHits"`
	Results      []ranker.SearchResult `json:"results"`
	IndexVersion string                `json:"indexVersion"`
}

type Executor struct {
	holder       *index.Holder
	tokenizer    *tokenizer.Tokenizer
	weights      ranker.Weights
	defaultLimit int
	maxResults   int
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

type Option func(*Executor)

func WithTokenizer(tok *tokenizer.Tokenizer) Option {
	return func(e *Executor) { e.tokenizer = tok }
}

func WithWeights(w ranker.Weights) Option {
	return func(e *Executor) { e.weights = w }
}

// WithLimits sets the limit applied when a request has none and the cap on
// any requested limit.
func WithLimits(defaultLimit, maxResults int) Option {
	return func(e *Executor) {
		if defaultLimit > 0 {
			e.defaultLimit = defaultLimit
		}
		if maxResults > 0 {
			e.maxResults = maxResults
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

func New(holder *index.Holder, opts ...Option) *Executor {
	e := &Executor{
		holder:       holder,
		tokenizer:    tokenizer.New(),
		weights:      ranker.DefaultWeights(),
		defaultLimit: DefaultLimit,
		maxResults:   DefaultMaxResults,
		logger:       slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs req against the index currently published by the holder.
func (e *Executor) Execute(ctx context.Context, req Request) (*Response, error) {
	return e.ExecuteOn(ctx, e.holder.Load(), req)
}

// ExecuteOn runs req against idx. A query that matches nothing is not an
// error; errors are reserved for a missing index and invalid filters.
func (e *Executor) ExecuteOn(ctx context.Context, idx *index.Index, req Request) (*Response, error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "search")
	defer func() {
		span.End()
		span.Log(e.logger)
	}()
	resp, err := e.execute(ctx, idx, req)
	if err != nil {
		e.observe("error", start, 0)
		return nil, err
	}
	resultType := "hit"
	if resp.TotalHits == 0 {
		resultType = "zero_result"
	}
	e.observe(resultType, start, len(resp.Results))
	e.logger.Info("query executed",
		"query", req.Query,
		"terms", resp.Terms,
		"hits", resp.TotalHits,
		"results", len(resp.Results),
		"duration", time.Since(start),
	)
	return resp, nil
}

func (e *Executor) execute(ctx context.Context, idx *index.Index, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	}
	if idx == nil {
		return nil, apperrors.ErrIndexNotLoaded
	}
	filter, err := resolveFilter(idx, req.Filter, req.FilterNames)
	if err != nil {
		return nil, err
	}
	_, parseSpan := tracing.Start(ctx, "parse")
	plan := parser.Parse(req.Query, e.tokenizer)
	parseSpan.SetAttr("terms", len(plan.Terms))
	parseSpan.End()
	resp := &Response{
		Query:        req.Query,
		Terms:        plan.Terms,
		ExcludeTerms: plan.ExcludeTerms,
		Results:      []ranker.SearchResult{},
		IndexVersion: idx.Version(),
	}
	if plan.Empty() {
		return resp, nil
	}

	_, matchSpan := tracing.Start(ctx, "match")
	docs := matcher.MatchTerms(idx, plan.Terms)
	matcher.Exclude(idx, docs, plan.ExcludeTerms)
	matcher.Restrict(docs, filter)

	objects := matcher.RestrictObjects(matcher.MatchObjects(idx, plan.ObjectQuery), filter)
	matchSpan.SetAttr("documents", docs.GetCardinality())
	matchSpan.SetAttr("objects", len(objects))
	matchSpan.End()

	_, rankSpan := tracing.Start(ctx, "rank")
	defer rankSpan.End()
	objResults := ranker.Score(idx, plan.Terms, nil, objects, e.weights)
	docResults := ranker.Score(idx, plan.Terms, docs, nil, e.weights)
	resp.TotalHits = len(objResults) + len(docResults)
	resp.Results = merger.Merge([][]ranker.SearchResult{objResults, docResults}, e.limit(req.Limit))
	return resp, nil
}

// Objects returns the API objects whose name contains query.
func (e *Executor) Objects(ctx context.Context, query string, limit int) ([]matcher.ObjectMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	}
	idx := e.holder.Load()
	if idx == nil {
		return nil, apperrors.ErrIndexNotLoaded
	}
	matches := matcher.MatchObjects(idx, query)
	if l := e.limit(limit); len(matches) > l {
		matches = matches[:l]
	}
	return matches, nil
}

func (e *Executor) limit(requested int) int {
	if requested <= 0 {
		return e.defaultLimit
	}
	if requested > e.maxResults {
		return e.maxResults
	}
	return requested
}

func (e *Executor) observe(resultType string, start time.Time, results int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.SearchLatency.WithLabelValues("miss").Observe(time.Since(start).Seconds())
	if resultType != "error" {
		e.metrics.SearchResultsCount.Observe(float64(results))
	}
}

// resolveFilter turns document ids and names into a filter set. It returns a
// nil set when no filter was requested.
func resolveFilter(idx *index.Index, ids []int, names []string) (*roaring.Bitmap, error) {
	if len(ids) == 0 && len(names) == 0 {
		return nil, nil
	}
	filter := roaring.New()
	for _, id := range ids {
		if _, ok := idx.Document(id); !ok {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
				"filter document id %d out of range [0,%d)", id, idx.DocumentCount())
		}
		filter.Add(uint32(id))
	}
	for _, name := range names {
		doc, ok := idx.DocumentByName(name)
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
				"filter document %q not in index", name)
		}
		filter.Add(uint32(doc.ID))
	}
	return filter, nil
}
