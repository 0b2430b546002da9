package guardrail

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/realtimemesh/core"
	"github.com/hupe1980/realtimemesh/history"
	"github.com/hupe1980/realtimemesh/logging"
	"github.com/hupe1980/realtimemesh/observability"
)

// Sender delivers tripwire commands to the realtime transport.
type Sender interface {
	Send(ctx context.Context, cmd core.Command) error
}

// Options configures a Pipeline.
type Options struct {
	// Brand is passed to the classifier as the caller identifying label.
	Brand string
	// Timeout bounds a single classification. 0 means no bound beyond the
	// scheduling context.
	Timeout time.Duration
	// Correct sends the corrective message after a tripwire. Default true.
	Correct  bool
	Logger   logging.Logger
	Observer observability.Observer
}

// Pipeline schedules one background classification per completed assistant
// message. Verdicts are attached by item id, so out of order completion is
// harmless.
type Pipeline struct {
	classifier Classifier
	transcript *history.Transcript
	sender     Sender
	opts       Options

	mu        sync.Mutex
	scheduled map[string]struct{}
	wg        sync.WaitGroup
}

// NewPipeline creates a pipeline writing verdicts into transcript and
// tripwire commands to sender.
func NewPipeline(classifier Classifier, transcript *history.Transcript, sender Sender, optFns ...func(o *Options)) *Pipeline {
	opts := Options{
		Correct: true,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Observer == nil {
		opts.Observer = observability.NoOpObserver{}
	}

	return &Pipeline{
		classifier: classifier,
		transcript: transcript,
		sender:     sender,
		opts:       opts,
		scheduled:  map[string]struct{}{},
	}
}

// Schedule starts the check for a completed assistant message and returns
// immediately. A message is checked at most once; further calls return false.
// Results arriving after ctx is cancelled are dropped.
func (p *Pipeline) Schedule(ctx context.Context, itemID, text string) bool {
	p.mu.Lock()
	if _, dup := p.scheduled[itemID]; dup {
		p.mu.Unlock()
		return false
	}
	p.scheduled[itemID] = struct{}{}
	p.mu.Unlock()

	if _, err := p.transcript.AttachVerdict(itemID, core.Verdict{Text: text, Status: core.VerdictPending}); err != nil {
		p.opts.Logger.Warn("guardrail.schedule.skipped", "item_id", itemID, "error", err.Error())
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.check(ctx, itemID, text)
	}()
	return true
}

// Wait blocks until all scheduled checks have finished.
func (p *Pipeline) Wait() { p.wg.Wait() }

// classify runs the classifier, turning a panic into an error so the
// fail-open path applies.
func (p *Pipeline) classify(ctx context.Context, itemID, text string) (verdict core.Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.opts.Logger.Error("guardrail.check.panic", "item_id", itemID, "recover", fmt.Sprint(r))
			verdict, err = core.Verdict{}, fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return p.classifier.Classify(ctx, text, p.opts.Brand)
}

func (p *Pipeline) check(ctx context.Context, itemID, text string) {
	callCtx := ctx
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	verdict, err := p.classify(callCtx, itemID, text)

	if ctx.Err() != nil {
		p.opts.Logger.Debug("guardrail.verdict.dropped", "item_id", itemID)
		return
	}

	if err != nil {
		p.opts.Logger.Warn("guardrail.classifier.failed", "item_id", itemID, "error", err.Error())
		p.emit(ctx, observability.EventClassifierFailed, observability.LevelWarning, itemID, map[string]any{
			"error": err.Error(),
		})
		verdict = core.Verdict{
			Category:  core.CategoryNone,
			Rationale: "classifier unavailable, message passed without check: " + err.Error(),
			Failed:    true,
		}
	}
	verdict.Text = text
	verdict.Status = core.VerdictDone

	if _, err := p.transcript.AttachVerdict(itemID, verdict); err != nil {
		p.opts.Logger.Warn("guardrail.verdict.unattached", "item_id", itemID, "error", err.Error())
		return
	}

	p.opts.Logger.Debug("guardrail.verdict", "item_id", itemID, "category", string(verdict.Category), "duration_ms", time.Since(start).Milliseconds())

	if !verdict.Tripped() {
		p.emit(ctx, observability.EventGuardrailPassed, observability.LevelVerbose, itemID, map[string]any{
			"category": string(verdict.Category),
			"failed":   verdict.Failed,
		})
		return
	}
	p.trip(ctx, itemID, verdict)
}

func (p *Pipeline) trip(ctx context.Context, itemID string, verdict core.Verdict) {
	p.opts.Logger.Warn("guardrail.tripped", "item_id", itemID, "category", string(verdict.Category), "rationale", verdict.Rationale)
	p.emit(ctx, observability.EventGuardrailTripped, observability.LevelWarning, itemID, map[string]any{
		"category":  string(verdict.Category),
		"rationale": verdict.Rationale,
		"text":      verdict.Text,
	})

	if err := p.sender.Send(ctx, core.ResponseCancel{}); err != nil {
		p.opts.Logger.Warn("guardrail.cancel.failed", "item_id", itemID, "error", err.Error())
	}
	if !p.opts.Correct {
		return
	}
	if err := p.sender.Send(ctx, core.MessageSend{Role: core.RoleUser, Text: core.FormatCorrection(verdict)}); err != nil {
		p.opts.Logger.Warn("guardrail.correction.failed", "item_id", itemID, "error", err.Error())
	}
}

func (p *Pipeline) emit(ctx context.Context, typ observability.EventType, level observability.Level, itemID string, data map[string]any) {
	data["item_id"] = itemID
	observability.Emit(ctx, p.opts.Observer, typ, level, "guardrail", data)
}
