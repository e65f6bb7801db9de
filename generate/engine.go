// Package generate orchestrates debounced inline-completion requests against
// the inference service.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ghostline "github.com/Paranoid-AF/ghostline"
	"github.com/Paranoid-AF/ghostline/inference"
	"github.com/Paranoid-AF/ghostline/redact"
)

const (
	// DefaultDebounce is the quiet period before a request is served.
	DefaultDebounce = 500 * time.Millisecond

	// minPrefixChars is the least non-whitespace text before the cursor that
	// triggers a completion.
	minPrefixChars = 5
)

// Inferencer is the inference service as seen by the engine.
type Inferencer interface {
	CheckAvailability(ctx context.Context, cfg ghostline.ServiceConfig) (inference.Availability, error)
	Generate(ctx context.Context, cfg ghostline.ServiceConfig, prompt string) (string, error)
}

// Notifier receives user-visible notifications. Notify must not block.
type Notifier interface {
	Notify(n ghostline.Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ghostline.Notice)

func (f NotifierFunc) Notify(n ghostline.Notice) { f(n) }

// Options configure an Engine. Zero values select the defaults.
type Options struct {
	Clock    Clock
	Debounce time.Duration
	Notifier Notifier
	// OnStatus is called after each status change, outside the engine lock.
	OnStatus func(Status)
}

// CompletionRequest is one editor request for a suggestion.
type CompletionRequest struct {
	// Document is read when the request is made (prefix guard) and again
	// when the debounce fires (context), so a live document yields the
	// freshest context.
	Document   Document
	Position   Position
	LanguageID string
}

// Suggestion is text to insert at Position with a zero-length replacement range.
type Suggestion struct {
	Text     string
	Position Position
}

// Engine debounces completion requests, tracks the service status, and runs
// the check → extract → prompt → generate → clean pipeline. It holds at most
// one pending debounce timer and one in-flight generation.
type Engine struct {
	client   Inferencer
	clock    Clock
	debounce time.Duration
	notifier Notifier
	onStatus func(Status)

	mu     sync.Mutex
	cfg    ghostline.ServiceConfig
	state  requestState
	closed bool
}

// NewEngine creates an engine in the Starting state.
func NewEngine(client Inferencer, cfg ghostline.ServiceConfig, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Engine{
		client:   client,
		clock:    opts.Clock,
		debounce: opts.Debounce,
		notifier: opts.Notifier,
		onStatus: opts.OnStatus,
		cfg:      cfg,
		state:    newRequestState(),
	}
}

// Status returns the current service status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.status
}

// Config returns the current service config.
func (e *Engine) Config() ghostline.ServiceConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetConfig replaces the service config. Callers follow up with Recheck.
func (e *Engine) SetConfig(cfg ghostline.ServiceConfig) {
	e.mu.Lock()
	e.cfg = cfg
	e.state.reconfigure()
	e.mu.Unlock()
	slog.Info("service config updated", "host", cfg.Host, "model", cfg.Model)
}

// Recheck runs an availability check outside of any completion and returns
// the resulting status.
func (e *Engine) Recheck(ctx context.Context) Status {
	e.mu.Lock()
	closed := e.closed
	epoch := e.state.epoch
	cfg := e.cfg
	e.mu.Unlock()

	if !closed {
		e.check(ctx, epoch, cfg)
	}
	return e.Status()
}

// Close stops any pending timer, cancels in-flight generation, and silences
// the status and notification sinks. It does not wait for network calls.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.state.shutdown()
}

// Complete returns a suggestion for req, or nil. It blocks for the debounce
// period and the network calls. ctx is the editor's cancellation signal.
func (e *Engine) Complete(ctx context.Context, req CompletionRequest) *Suggestion {
	lines := req.Document.Lines()
	if !inDocument(lines, req.Position) {
		slog.Debug("completion position outside document", "line", req.Position.Line, "character", req.Position.Character, "lines", len(lines))
		completionsTotal.WithLabelValues("invalid").Inc()
		return nil
	}
	before := textBefore(lines[req.Position.Line], req.Position.Character)
	if nonSpaceCount(before) < minPrefixChars {
		completionsTotal.WithLabelValues("short_prefix").Inc()
		return nil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.state.supersede()
	if e.state.suppressed(req.Position) {
		e.mu.Unlock()
		slog.Debug("completion suppressed", "line", req.Position.Line, "character", req.Position.Character)
		completionsTotal.WithLabelValues("suppressed").Inc()
		return nil
	}
	p := e.state.schedule(req.Position, ctx)
	p.timer = e.clock.AfterFunc(e.debounce, func() { e.fire(p.epoch) })
	e.mu.Unlock()

	select {
	case <-p.fired:
	case <-p.dropped:
		completionsTotal.WithLabelValues("superseded").Inc()
		return nil
	case <-ctx.Done():
		e.mu.Lock()
		e.state.abandon(p.epoch)
		e.mu.Unlock()
		completionsTotal.WithLabelValues("cancelled").Inc()
		return nil
	}

	if ctx.Err() != nil {
		e.release(p.epoch)
		completionsTotal.WithLabelValues("cancelled").Inc()
		return nil
	}

	result := e.serve(ctx, p.epoch, req)
	e.mu.Lock()
	e.state.settle(p.epoch)
	e.mu.Unlock()
	return result
}

// release lets the position of epoch be requested again.
func (e *Engine) release(epoch uint64) {
	e.mu.Lock()
	e.state.release(epoch)
	e.mu.Unlock()
}

func (e *Engine) fire(epoch uint64) {
	e.mu.Lock()
	e.state.fire(epoch)
	e.mu.Unlock()
}

// serve runs the pipeline for a fired request.
func (e *Engine) serve(ctx context.Context, epoch uint64, req CompletionRequest) (result *Suggestion) {
	defer func() {
		if r := recover(); r != nil {
			e.fail(epoch, fmt.Errorf("completion panicked: %v", r))
			result = nil
		}
	}()

	cfg := e.Config()
	if !e.check(ctx, epoch, cfg) {
		completionsTotal.WithLabelValues("unavailable").Inc()
		return nil
	}

	window, err := Extract(req.Document, req.Position)
	if errors.Is(err, ErrPositionOutOfRange) {
		// The document changed under the pending request.
		slog.Debug("completion position gone at fire time", "line", req.Position.Line, "character", req.Position.Character)
		e.release(epoch)
		completionsTotal.WithLabelValues("stale").Inc()
		return nil
	}
	if err != nil {
		e.fail(epoch, fmt.Errorf("extract context: %w", err))
		return nil
	}
	window.Preceding = redact.Lines(req.LanguageID, window.Preceding)
	window.Following = redact.Lines(req.LanguageID, window.Following)
	prompt := buildPromptFromWindow(req.LanguageID, window)

	slog.Debug("prompt", "language", req.LanguageID, "prompt", prompt)

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !e.transition(func(s *requestState) bool { return s.beginGeneration(epoch, cancel) }) {
		completionsTotal.WithLabelValues("stale").Inc()
		return nil
	}

	start := time.Now()
	raw, err := e.client.Generate(genCtx, cfg, prompt)
	generationDuration.Observe(time.Since(start).Seconds())

	cancelled := ctx.Err() != nil
	if err != nil && !cancelled && !errors.Is(err, inference.ErrMalformedResponse) {
		e.mu.Lock()
		e.state.endGeneration(epoch)
		e.mu.Unlock()
		e.fail(epoch, err)
		return nil
	}

	fresh := e.finishGeneration(epoch)
	if cancelled {
		e.release(epoch)
	}
	switch {
	case !fresh || cancelled:
		slog.Debug("dropping superseded completion", "line", req.Position.Line, "character", req.Position.Character)
		completionsTotal.WithLabelValues("stale").Inc()
		return nil
	case err != nil:
		slog.Warn("unreadable generation response", "error", err)
		completionsTotal.WithLabelValues("empty").Inc()
		return nil
	}

	text := CleanSuggestion(raw, textBefore(window.Current, req.Position.Character))
	slog.Debug("generation", "raw", raw, "suggestion", text)
	if text == "" {
		completionsTotal.WithLabelValues("empty").Inc()
		return nil
	}

	completionsTotal.WithLabelValues("suggested").Inc()
	return &Suggestion{Text: text, Position: req.Position}
}

// check runs the availability check for epoch and applies its status and
// notification. It reports whether generation may proceed.
func (e *Engine) check(ctx context.Context, epoch uint64, cfg ghostline.ServiceConfig) bool {
	prev := e.Status()
	e.transition(func(s *requestState) bool { return s.beginCheck(epoch) })

	avail, err := e.client.CheckAvailability(ctx, cfg)
	if ctx.Err() != nil {
		// The caller gave up; a cancelled probe says nothing about the service.
		e.transition(func(s *requestState) bool {
			return s.status == StatusChecking && s.setStatus(epoch, prev)
		})
		e.release(epoch)
		return false
	}
	availabilityChecks.WithLabelValues(avail.String()).Inc()

	e.mu.Lock()
	current := e.state.current(epoch) && !e.closed
	changed := current && e.state.checked(epoch, avail)
	notify := current && e.state.shouldNotify(availabilityStatus(avail))
	status := e.state.status
	e.mu.Unlock()

	if changed {
		e.emitStatus(status)
	}

	switch avail {
	case inference.Ready:
		return current
	case inference.ModelNotFound:
		slog.Warn("model not found", "host", cfg.Host, "model", cfg.Model)
		if notify {
			e.notify("warning", fmt.Sprintf("ghostline: model %q is not available on %s; run `ollama pull %s`", cfg.Model, cfg.Host, cfg.Model))
		}
	default:
		slog.Warn("inference service unavailable", "host", cfg.Host, "error", err)
		if notify {
			e.notify("warning", fmt.Sprintf("ghostline: inference service at %s is not reachable", cfg.Host))
		}
	}
	return false
}

// finishGeneration leaves Generating for epoch and reports whether epoch is
// still the newest request.
func (e *Engine) finishGeneration(epoch uint64) bool {
	e.mu.Lock()
	e.state.endGeneration(epoch)
	fresh := e.state.current(epoch) && !e.closed
	changed := fresh && e.state.generated(epoch)
	status := e.state.status
	e.mu.Unlock()

	if changed {
		e.emitStatus(status)
	}
	return fresh
}

// fail records a pipeline failure for epoch. Failures of superseded
// requests are only logged.
func (e *Engine) fail(epoch uint64, err error) {
	e.mu.Lock()
	current := e.state.current(epoch) && !e.closed
	changed := current && e.state.failed(epoch)
	status := e.state.status
	e.mu.Unlock()

	if !current {
		slog.Debug("discarding failure of superseded completion", "error", err)
		return
	}

	slog.Error("completion failed", "error", err)
	completionsTotal.WithLabelValues("error").Inc()
	if changed {
		e.emitStatus(status)
	}
	e.notify("error", "ghostline: completion failed: "+err.Error())
}

// transition applies f under the lock and emits the resulting status if it changed.
func (e *Engine) transition(f func(*requestState) bool) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	changed := f(&e.state)
	status := e.state.status
	e.mu.Unlock()

	if changed {
		e.emitStatus(status)
	}
	return changed
}

func (e *Engine) emitStatus(s Status) {
	slog.Debug("status", "status", s.String())
	if e.onStatus != nil {
		e.onStatus(s)
	}
}

func (e *Engine) notify(level, message string) {
	if e.notifier != nil {
		e.notifier.Notify(ghostline.Notice{Level: level, Message: message})
	}
}
