package inference

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finxtract/constants"
	"finxtract/internal/budget"
	"finxtract/internal/common"
	"finxtract/internal/document"
	"finxtract/internal/extract"
	"finxtract/internal/llm"
	"finxtract/internal/rate"
)

const validClassification = `{"balance_sheet":0.9,"income_statement":0.1,"cash_flow":0.05,"equity":0.0}`

const validExtraction = `{
	"years": [2023, 2022],
	"fields": [{
		"category": "BalanceSheet",
		"subcategory": "Assets",
		"field": "Total assets",
		"values": {"2023": "352,755", "2022": "338,736"},
		"confidence": 0.92
	}]
}`

// scriptedInferencer plays back a fixed sequence of outcomes.
type scriptedInferencer struct {
	outcomes []outcome
	calls    int
}

type outcome struct {
	content string
	err     error
}

func (s *scriptedInferencer) Infer(_ context.Context, _ llm.InferRequest) (*llm.InferResponse, error) {
	i := s.calls
	s.calls++
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	}
	o := s.outcomes[i]
	if o.err != nil {
		return nil, o.err
	}
	return &llm.InferResponse{Content: []byte(o.content)}, nil
}

func newTestClient(inf llm.VisionInferencer, bud *budget.Controller) *Client {
	cfg := Config{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
	}
	limiter := rate.NewLimiter(1000, time.Minute, nil)
	return NewClient(cfg, inf, limiter, bud, nil)
}

func testPage(index int) document.Page {
	return document.Page{Index: index, Image: []byte{0xFF, 0xD8}, MIME: "image/jpeg"}
}

func TestClassifySuccess(t *testing.T) {
	inf := &scriptedInferencer{outcomes: []outcome{{content: validClassification}}}
	bud := budget.NewController(1.0)
	c := newTestClient(inf, bud)

	score, err := c.Classify(context.Background(), testPage(3))
	require.NoError(t, err)
	require.Equal(t, 3, score.PageIndex)
	require.InDelta(t, 0.9, score.Scores[constants.BalanceSheet], 1e-9)
	require.InDelta(t, 0.9, score.Aggregate(), 1e-9)
	require.Equal(t, 1, bud.Calls())
}

func TestClassifyRetriesTransientThenSucceeds(t *testing.T) {
	inf := &scriptedInferencer{outcomes: []outcome{
		{err: &llm.StatusError{Status: 429, Body: "slow down"}},
		{err: &llm.StatusError{Status: 503, Body: "overloaded"}},
		{content: validClassification},
	}}
	bud := budget.NewController(1.0)
	c := newTestClient(inf, bud)

	score, err := c.Classify(context.Background(), testPage(0))
	require.NoError(t, err)
	require.False(t, score.Failed)
	require.Equal(t, 3, inf.calls)
	// Failed attempts still consumed budget.
	require.Equal(t, 3, bud.Calls())
}

func TestClassifyTerminalClientErrorDoesNotRetry(t *testing.T) {
	inf := &scriptedInferencer{outcomes: []outcome{
		{err: &llm.StatusError{Status: 400, Body: "bad request"}},
	}}
	c := newTestClient(inf, budget.NewController(1.0))

	_, err := c.Classify(context.Background(), testPage(0))
	require.Error(t, err)
	require.Equal(t, 1, inf.calls, "4xx must not be retried")
}

func TestClassifyAttemptsExhausted(t *testing.T) {
	inf := &scriptedInferencer{outcomes: []outcome{
		{err: &llm.StatusError{Status: 500, Body: "boom"}},
	}}
	c := newTestClient(inf, budget.NewController(1.0))

	_, err := c.Classify(context.Background(), testPage(0))
	require.Error(t, err)
	require.Contains(t, err.Error(), "attempts exhausted")
	require.Equal(t, 3, inf.calls)
}

func TestExtractMalformedOnceThenRecovers(t *testing.T) {
	inf := &scriptedInferencer{outcomes: []outcome{
		{content: `{"totally": "unexpected"`},
		{content: validExtraction},
	}}
	c := newTestClient(inf, budget.NewController(1.0))

	sel := extract.SelectedPage{Page: testPage(5)}
	res, err := c.Extract(context.Background(), sel)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, []int{2023, 2022}, res.Years)
	require.Equal(t, 2, inf.calls)

	f := constants.TemplateField{Category: "BalanceSheet", Subcategory: "Assets", Field: "Total assets"}
	require.Equal(t, "352,755", res.Fields[f].Values[2023])
	require.InDelta(t, 0.92, res.Fields[f].Confidence, 1e-9)
}

func TestExtractMalformedTwiceIsTerminalForPage(t *testing.T) {
	inf := &scriptedInferencer{outcomes: []outcome{
		{content: `not json at all`},
		{content: `still not json`},
	}}
	c := newTestClient(inf, budget.NewController(1.0))

	res, err := c.Extract(context.Background(), extract.SelectedPage{Page: testPage(7)})
	// Terminal for the page, not for the run.
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, 7, res.PageIndex)
	require.Contains(t, res.Err, "malformed")
	require.Equal(t, 2, inf.calls)
}

// stallingInferencer blocks until the per-call deadline expires.
type stallingInferencer struct {
	calls int
}

func (s *stallingInferencer) Infer(ctx context.Context, _ llm.InferRequest) (*llm.InferResponse, error) {
	s.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestExtractTimeoutExhaustedStaysPageLocal(t *testing.T) {
	inf := &stallingInferencer{}
	bud := budget.NewController(1.0)
	c := newTestClient(inf, bud)
	c.cfg.ExtractTimeout = 10 * time.Millisecond

	res, err := c.Extract(context.Background(), extract.SelectedPage{Page: testPage(4)})
	require.NoError(t, err, "a per-call timeout is the page's failure, not the run's")
	require.False(t, res.Success)
	require.Equal(t, 4, res.PageIndex)
	require.Contains(t, res.Err, "attempts exhausted")
	require.Equal(t, 3, inf.calls)
	require.Equal(t, 3, bud.Calls(), "timed-out attempts still count against the budget")
}

func TestExtractRunCancellationIsRunLevel(t *testing.T) {
	inf := &stallingInferencer{}
	c := newTestClient(inf, budget.NewController(1.0))
	c.cfg.ExtractTimeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res, err := c.Extract(ctx, extract.SelectedPage{Page: testPage(1)})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, res.Success)
}

func TestExtractBudgetDenialIsRunLevel(t *testing.T) {
	inf := &scriptedInferencer{outcomes: []outcome{{content: validExtraction}}}
	c := newTestClient(inf, budget.NewController(0.001)) // below any estimate

	res, err := c.Extract(context.Background(), extract.SelectedPage{Page: testPage(2)})
	require.ErrorIs(t, err, common.ErrBudgetExhausted)
	require.False(t, res.Success)
	require.Zero(t, inf.calls, "a denied reservation must not reach the provider")
}

func TestExtractDropsOffTemplateFields(t *testing.T) {
	payload := `{
		"years": [2023],
		"fields": [
			{"category": "BalanceSheet", "subcategory": "Assets", "field": "Total assets",
			 "values": {"2023": "100"}, "confidence": 0.8},
			{"category": "Nonsense", "subcategory": "Made", "field": "Up",
			 "values": {"2023": "42"}, "confidence": 0.9}
		]
	}`
	inf := &scriptedInferencer{outcomes: []outcome{{content: payload}}}
	c := newTestClient(inf, budget.NewController(1.0))

	res, err := c.Extract(context.Background(), extract.SelectedPage{Page: testPage(0)})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Fields, 1)
}

func TestExtractDropsValuesForUnreportedYears(t *testing.T) {
	payload := `{
		"years": [2023],
		"fields": [{
			"category": "BalanceSheet", "subcategory": "Assets", "field": "Total assets",
			"values": {"2023": "100", "2019": "55"}, "confidence": 0.8
		}]
	}`
	inf := &scriptedInferencer{outcomes: []outcome{{content: payload}}}
	c := newTestClient(inf, budget.NewController(1.0))

	res, err := c.Extract(context.Background(), extract.SelectedPage{Page: testPage(0)})
	require.NoError(t, err)

	f := constants.TemplateField{Category: "BalanceSheet", Subcategory: "Assets", Field: "Total assets"}
	require.Equal(t, map[int]string{2023: "100"}, res.Fields[f].Values)
}

func TestBackoffIsCappedExponential(t *testing.T) {
	c := newTestClient(&scriptedInferencer{}, budget.NewController(1.0))
	c.cfg.BackoffBase = 500 * time.Millisecond
	c.cfg.BackoffCap = 8 * time.Second

	require.Equal(t, 500*time.Millisecond, c.backoff(1))
	require.Equal(t, time.Second, c.backoff(2))
	require.Equal(t, 2*time.Second, c.backoff(3))
	require.Equal(t, 8*time.Second, c.backoff(6))
	require.Equal(t, 8*time.Second, c.backoff(10))
}
