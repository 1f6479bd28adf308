package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/cyclone-track-service/internal/domain"
	"github.com/couchcryptid/cyclone-track-service/internal/observability"
)

// ChatMessage is one turn of a model conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompleter sends a conversation to a chat model and returns the
// assistant reply text.
type ChatCompleter interface {
	Complete(ctx context.Context, model string, messages []ChatMessage) (string, error)
}

// Attempt failure sub-reasons. All three draw from the same retry budget.
const (
	ReasonTransport = "transport"
	ReasonExtract   = "extract"
	ReasonDecode    = "decode"
)

// AttemptError records why a single model attempt failed.
type AttemptError struct {
	Reason string
	Err    error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("attempt failed (%s): %v", e.Reason, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// payload is the structured forecast the model is asked to produce.
type payload struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	WindSpeed float64 `json:"wind_speed"`
}

// conversation is the message history for one storm and horizon. Each
// forecast task owns its conversation outright, so concurrent tasks never
// contend on shared chat state.
type conversation struct {
	threadID string
	messages []ChatMessage
}

func newConversation(threadID string) *conversation {
	return &conversation{
		threadID: threadID,
		messages: []ChatMessage{{Role: "system", Content: SystemMessage}},
	}
}

// record appends a completed prompt/reply exchange to the history.
func (c *conversation) record(prompt, reply string) {
	c.messages = append(c.messages,
		ChatMessage{Role: "user", Content: prompt},
		ChatMessage{Role: "assistant", Content: reply},
	)
}

// withPrompt returns the history plus the pending user prompt, leaving the
// stored history untouched until the exchange succeeds.
func (c *conversation) withPrompt(prompt string) []ChatMessage {
	out := make([]ChatMessage, len(c.messages), len(c.messages)+1)
	copy(out, c.messages)
	return append(out, ChatMessage{Role: "user", Content: prompt})
}

// StormOutcome is the per-storm result of a forecast batch. A storm can
// fail while its siblings succeed.
type StormOutcome struct {
	StormID string
	Results []domain.ForecastResult
	Err     error
}

// Orchestrator fans out forecast prompts across storms and horizons.
type Orchestrator struct {
	completer   ChatCompleter
	builder     Builder
	model       string
	horizons    []int
	retries     int
	reflection  bool
	concurrency int
	reqTimeout  time.Duration
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// Options configures an Orchestrator.
type Options struct {
	Model        string
	Horizons     []int
	Retries      int
	HistoryLimit int
	Reflection   bool
	Concurrency  int
	ReqTimeout   time.Duration
}

// NewOrchestrator creates a forecast orchestrator.
func NewOrchestrator(completer ChatCompleter, opts Options, clk clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	return &Orchestrator{
		completer:   completer,
		builder:     Builder{HistoryLimit: opts.HistoryLimit},
		model:       opts.Model,
		horizons:    opts.Horizons,
		retries:     opts.Retries,
		reflection:  opts.Reflection,
		concurrency: opts.Concurrency,
		reqTimeout:  opts.ReqTimeout,
		clock:       clk,
		logger:      logger,
		metrics:     metrics,
	}
}

// ForecastAll forecasts every storm in the batch. Storms run concurrently
// up to the configured limit, and one storm failing never aborts its
// siblings: the caller gets an outcome per storm.
func (o *Orchestrator) ForecastAll(ctx context.Context, storms []domain.StormSnapshot) []StormOutcome {
	start := o.clock.Now()
	defer func() {
		o.metrics.ForecastDuration.Observe(o.clock.Since(start).Seconds())
	}()

	// The tag makes thread ids unique across runs so logs from two
	// overlapping batches stay distinguishable.
	tag := start.Unix()

	outcomes := make([]StormOutcome, len(storms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, storm := range storms {
		g.Go(func() error {
			results, err := o.forecastStorm(gctx, storm, tag)
			outcomes[i] = StormOutcome{StormID: storm.ID, Results: results, Err: err}
			if err != nil {
				o.metrics.ForecastStorms.WithLabelValues("exhausted").Inc()
				o.logger.Error("storm forecast failed", "storm", storm.ID, "error", err)
			} else {
				o.metrics.ForecastStorms.WithLabelValues("success").Inc()
			}
			return nil
		})
	}
	// Per-storm errors are carried in the outcomes, so Wait never fails.
	_ = g.Wait()
	return outcomes
}

type horizonForecast struct {
	horizon      int
	conv         *conversation
	payload      payload
	ok           bool
	wasReflected bool
}

// forecastStorm runs the first forecast pass for every horizon, then the
// reflection pass over the aggregated results. Horizons whose first pass
// exhausts the retry budget are skipped with a logged diagnostic; the
// storm still succeeds if any horizon produced a forecast.
func (o *Orchestrator) forecastStorm(ctx context.Context, storm domain.StormSnapshot, tag int64) ([]domain.ForecastResult, error) {
	if len(storm.Entries) == 0 {
		return nil, fmt.Errorf("storm %s has no track history", storm.ID)
	}

	req := domain.ForecastRequest{
		StormID:  storm.ID,
		Horizons: o.horizons,
		History:  storm.Entries,
		Retries:  o.retries,
		ThreadID: fmt.Sprintf("%d_%s", tag, storm.ID),
		ModelTag: o.model,
	}

	forecasts := make([]horizonForecast, len(req.Horizons))
	g, gctx := errgroup.WithContext(ctx)
	for i, horizon := range req.Horizons {
		g.Go(func() error {
			conv := newConversation(fmt.Sprintf("%s_%d", req.ThreadID, i))
			prompt, err := o.builder.ForecastPrompt(storm, horizon)
			if err != nil {
				return err
			}
			p, err := o.exchange(gctx, conv, prompt, req.Retries)
			if err != nil {
				if errors.Is(err, domain.ErrRetryExhausted) {
					o.logger.Warn("skipping horizon after exhausting retries",
						"storm", storm.ID, "horizon_hours", horizon, "thread", conv.threadID, "error", err)
					forecasts[i] = horizonForecast{horizon: horizon, conv: conv}
					return nil
				}
				return err
			}
			forecasts[i] = horizonForecast{horizon: horizon, conv: conv, payload: p, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	succeeded := 0
	for _, f := range forecasts {
		if f.ok {
			succeeded++
		}
	}
	if succeeded == 0 {
		return nil, fmt.Errorf("storm %s: %w: no horizon produced a forecast", storm.ID, domain.ErrRetryExhausted)
	}

	if o.reflection {
		if err := o.reflect(ctx, storm, forecasts); err != nil {
			return nil, err
		}
	}

	base := storm.LatestTime()
	results := make([]domain.ForecastResult, 0, succeeded)
	for _, f := range forecasts {
		if !f.ok {
			continue
		}
		results = append(results, domain.ForecastResult{
			StormID:       storm.ID,
			HorizonHours:  f.horizon,
			Lat:           f.payload.Lat,
			Lon:           f.payload.Lon,
			WindSpeed:     f.payload.WindSpeed,
			PredictedTime: base.Add(time.Duration(f.horizon) * time.Hour),
			ModelTag:      o.model,
			Reflected:     f.wasReflected,
		})
	}
	return results, nil
}

// reflect runs the quality-check pass over every horizon that produced a
// first-pass forecast. Confirmation keeps the first-pass payload verbatim;
// a revision replaces it. A horizon whose reflection exchange exhausts its
// budget falls back to the first-pass payload unreflected.
func (o *Orchestrator) reflect(ctx context.Context, storm domain.StormSnapshot, forecasts []horizonForecast) error {
	summary, err := o.aggregate(forecasts)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range forecasts {
		f := &forecasts[i]
		if !f.ok {
			continue
		}
		g.Go(func() error {
			prompt, err := o.builder.ReflectionPrompt(summary, f.horizon)
			if err != nil {
				return err
			}
			revised, confirmed, err := o.exchangeReflection(gctx, f.conv, prompt, f.payload)
			switch {
			case errors.Is(err, domain.ErrRetryExhausted):
				o.metrics.Reflections.WithLabelValues("failed").Inc()
				o.logger.Warn("reflection exhausted retries, keeping first-pass forecast",
					"storm", storm.ID, "horizon_hours", f.horizon, "thread", f.conv.threadID)
				return nil
			case err != nil:
				return err
			case confirmed:
				o.metrics.Reflections.WithLabelValues("confirmed").Inc()
			default:
				o.metrics.Reflections.WithLabelValues("revised").Inc()
				f.payload = revised
			}
			f.wasReflected = true
			return nil
		})
	}
	return g.Wait()
}

// aggregate renders the first-pass forecasts for embedding in reflection
// prompts.
func (o *Orchestrator) aggregate(forecasts []horizonForecast) (string, error) {
	type line struct {
		ForecastHour int     `json:"forecast_hour"`
		Lat          float64 `json:"lat"`
		Lon          float64 `json:"lon"`
		WindSpeed    float64 `json:"wind_speed"`
	}
	lines := make([]line, 0, len(forecasts))
	for _, f := range forecasts {
		if !f.ok {
			continue
		}
		lines = append(lines, line{ForecastHour: f.horizon, Lat: f.payload.Lat, Lon: f.payload.Lon, WindSpeed: f.payload.WindSpeed})
	}
	data, err := json.MarshalIndent(lines, "", "  ")
	if err != nil {
		return "", fmt.Errorf("aggregate forecasts: %w", err)
	}
	return string(data), nil
}

// exchange sends prompt on conv and decodes the structured reply, retrying
// until the budget is spent. Transport failures, missing JSON, and decode
// failures all consume attempts from the same budget. The exchange is
// recorded on the conversation only once a reply arrives.
func (o *Orchestrator) exchange(ctx context.Context, conv *conversation, prompt string, retries int) (payload, error) {
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		reply, err := o.complete(ctx, conv.withPrompt(prompt))
		if err != nil {
			lastErr = &AttemptError{Reason: ReasonTransport, Err: err}
			o.observeAttempt(conv, attempt, lastErr)
			if ctx.Err() != nil {
				return payload{}, ctx.Err()
			}
			continue
		}
		conv.record(prompt, reply)

		p, err := decodeReply(reply)
		if err != nil {
			lastErr = err
			o.observeAttempt(conv, attempt, lastErr)
			continue
		}
		o.metrics.ForecastAttempts.WithLabelValues("parsed").Inc()
		return p, nil
	}
	return payload{}, fmt.Errorf("%w after %d attempts: %w", domain.ErrRetryExhausted, retries, lastErr)
}

// exchangeReflection is exchange for the quality-check prompt. A reply
// carrying a parsable payload is always a revision, even when it opens
// with the affirmative token; the affirmative shortcut applies only to a
// reply that supplies no replacement.
func (o *Orchestrator) exchangeReflection(ctx context.Context, conv *conversation, prompt string, firstPass payload) (payload, bool, error) {
	var lastErr error
	for attempt := 1; attempt <= o.retries; attempt++ {
		reply, err := o.complete(ctx, conv.withPrompt(prompt))
		if err != nil {
			lastErr = &AttemptError{Reason: ReasonTransport, Err: err}
			o.observeAttempt(conv, attempt, lastErr)
			if ctx.Err() != nil {
				return payload{}, false, ctx.Err()
			}
			continue
		}
		conv.record(prompt, reply)

		p, err := decodeReply(reply)
		if err == nil {
			o.metrics.ForecastAttempts.WithLabelValues("parsed").Inc()
			return p, false, nil
		}
		if isAffirmative(reply) {
			o.metrics.ForecastAttempts.WithLabelValues("parsed").Inc()
			return firstPass, true, nil
		}
		lastErr = err
		o.observeAttempt(conv, attempt, lastErr)
	}
	return payload{}, false, fmt.Errorf("%w after %d attempts: %w", domain.ErrRetryExhausted, o.retries, lastErr)
}

func (o *Orchestrator) complete(ctx context.Context, messages []ChatMessage) (string, error) {
	if o.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.reqTimeout)
		defer cancel()
	}
	return o.completer.Complete(ctx, o.model, messages)
}

func (o *Orchestrator) observeAttempt(conv *conversation, attempt int, err error) {
	reason := ReasonTransport
	var ae *AttemptError
	if errors.As(err, &ae) {
		reason = ae.Reason
	}
	o.metrics.ForecastAttempts.WithLabelValues(reason).Inc()
	o.logger.Debug("forecast attempt failed",
		"thread", conv.threadID, "attempt", attempt, "reason", reason, "error", err)
}

// decodeReply pulls the JSON object out of a model reply and decodes it.
func decodeReply(reply string) (payload, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return payload{}, &AttemptError{Reason: ReasonExtract, Err: err}
	}
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return payload{}, &AttemptError{Reason: ReasonDecode, Err: fmt.Errorf("%w: %w", domain.ErrDecode, err)}
	}
	return p, nil
}

// isAffirmative reports whether the reflection reply starts with an
// affirmative token, i.e. the model confirmed the first-pass forecast.
func isAffirmative(reply string) bool {
	trimmed := strings.TrimSpace(reply)
	if len(trimmed) < 4 {
		return false
	}
	return strings.EqualFold(trimmed[:4], "true")
}
