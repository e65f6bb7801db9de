package generate

import (
	"context"
	"sync"
	"testing"
	"time"

	ghostline "github.com/Paranoid-AF/ghostline"
	"github.com/Paranoid-AF/ghostline/inference"
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs the timers that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	var rest []*fakeTimer
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case t.at <= c.now:
			t.fired = true
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	c.timers = rest
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// Active counts timers that are neither stopped nor fired.
func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// stubInferencer is a scripted inference service.
type stubInferencer struct {
	mu        sync.Mutex
	avail     inference.Availability
	availErr  error
	response  string
	genErr    error
	panicMsg  string
	block     chan struct{} // Generate waits for close when non-nil
	checks    int
	generates int
	prompts   []string
	configs   []ghostline.ServiceConfig
}

func (s *stubInferencer) CheckAvailability(_ context.Context, cfg ghostline.ServiceConfig) (inference.Availability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	s.configs = append(s.configs, cfg)
	return s.avail, s.availErr
}

func (s *stubInferencer) Generate(ctx context.Context, _ ghostline.ServiceConfig, prompt string) (string, error) {
	s.mu.Lock()
	s.generates++
	s.prompts = append(s.prompts, prompt)
	block, resp, err, panicMsg := s.block, s.response, s.genErr, s.panicMsg
	s.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return resp, err
}

// blockingCheck holds CheckAvailability until release is closed or ctx ends.
type blockingCheck struct {
	*stubInferencer
	release chan struct{}
}

func (b *blockingCheck) CheckAvailability(ctx context.Context, cfg ghostline.ServiceConfig) (inference.Availability, error) {
	avail, err := b.stubInferencer.CheckAvailability(ctx, cfg)
	select {
	case <-b.release:
		return avail, err
	case <-ctx.Done():
		return inference.Offline, ctx.Err()
	}
}

func (s *stubInferencer) counts() (checks, generates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks, s.generates
}

func (s *stubInferencer) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

func (s *stubInferencer) set(f func(s *stubInferencer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s)
}

// recorder collects status changes and notices.
type recorder struct {
	mu       sync.Mutex
	statuses []Status
	notices  []ghostline.Notice
}

func (r *recorder) status(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) Notify(n ghostline.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) Notices() []ghostline.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ghostline.Notice(nil), r.notices...)
}

func (r *recorder) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

var testServiceConfig = ghostline.ServiceConfig{Host: "http://localhost:11434", Model: "coder:7b"}

func newTestEngine(t *testing.T, client Inferencer) (*Engine, *fakeClock, *recorder) {
	t.Helper()
	clock := &fakeClock{}
	rec := &recorder{}
	e := NewEngine(client, testServiceConfig, Options{
		Clock:    clock,
		Notifier: rec,
		OnStatus: rec.status,
	})
	t.Cleanup(e.Close)
	return e, clock, rec
}

// startComplete runs Complete in the background and returns its result channel.
func startComplete(ctx context.Context, e *Engine, req CompletionRequest) <-chan *Suggestion {
	ch := make(chan *Suggestion, 1)
	go func() { ch <- e.Complete(ctx, req) }()
	return ch
}

func receive(t *testing.T, ch <-chan *Suggestion) *Suggestion {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion result")
		return nil
	}
}

// liveDoc is a Document whose text can change while a request is pending.
type liveDoc struct {
	mu    sync.Mutex
	lines []string
}

func (d *liveDoc) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lines
}

func (d *liveDoc) Set(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = SplitLines(text)
}
