package generate

import (
	"context"

	"github.com/Paranoid-AF/ghostline/inference"
)

// pendingTimer is a scheduled debounce. fired is closed when the timer
// fires; dropped is closed when a newer request or Close supersedes it.
type pendingTimer struct {
	epoch   uint64
	pos     Position
	timer   Timer
	fired   chan struct{}
	dropped chan struct{}
}

// requestState is the engine's mutable state. Every method is a named
// transition and must be called with Engine.mu held.
//
// epoch identifies the most recently scheduled request. Status changes and
// results that carry an older epoch are discarded, so a late response can
// never overwrite the state of a newer request.
type requestState struct {
	status Status
	epoch  uint64

	pending *pendingTimer
	trigger *Position       // position of the most recently scheduled request
	caller  context.Context // trigger's request context
	served  bool            // trigger's timer fired and its pipeline started
	settled bool            // trigger's pipeline returned its result to the caller

	genEpoch  uint64
	genCancel context.CancelFunc

	notified Status // availability failure already notified; StatusStarting when none
}

func newRequestState() requestState {
	return requestState{status: StatusStarting, notified: StatusStarting}
}

// supersede stops a pending timer and releases its waiter.
// It reports whether a timer was pending.
func (s *requestState) supersede() bool {
	p := s.pending
	if p == nil {
		return false
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	close(p.dropped)
	s.pending = nil
	return true
}

// suppressed reports whether pos repeats the request whose pipeline already
// ran or is running. A running pipeline whose caller has gone away
// suppresses nothing, since its result will never be delivered.
func (s *requestState) suppressed(pos Position) bool {
	if !s.served || s.trigger == nil || *s.trigger != pos {
		return false
	}
	return s.settled || s.caller == nil || s.caller.Err() == nil
}

// schedule records pos as the trigger of a new pending request made under
// caller. The engine attaches the timer.
func (s *requestState) schedule(pos Position, caller context.Context) *pendingTimer {
	s.epoch++
	p := &pendingTimer{
		epoch:   s.epoch,
		pos:     pos,
		fired:   make(chan struct{}),
		dropped: make(chan struct{}),
	}
	s.pending = p
	s.trigger = &pos
	s.caller = caller
	s.served = false
	s.settled = false
	return p
}

// fire marks the pending request with epoch as served.
func (s *requestState) fire(epoch uint64) bool {
	p := s.pending
	if p == nil || p.epoch != epoch {
		return false
	}
	s.pending = nil
	s.served = true
	close(p.fired)
	return true
}

// abandon drops the pending request with epoch without releasing a waiter,
// used when the waiter itself gave up.
func (s *requestState) abandon(epoch uint64) {
	if p := s.pending; p != nil && p.epoch == epoch {
		if p.timer != nil {
			p.timer.Stop()
		}
		s.pending = nil
	}
	s.release(epoch)
}

// settle records that the pipeline of epoch returned its result.
func (s *requestState) settle(epoch uint64) {
	if s.epoch == epoch && s.served {
		s.settled = true
	}
}

// release forgets that epoch was served, so the same position may be
// scheduled again. Used when the pipeline was skipped.
func (s *requestState) release(epoch uint64) {
	if s.epoch == epoch {
		s.served = false
		s.settled = false
	}
}

func (s *requestState) current(epoch uint64) bool {
	return s.epoch == epoch
}

// reconfigure forgets the trigger position and prior notifications.
func (s *requestState) reconfigure() {
	s.trigger = nil
	s.caller = nil
	s.served = false
	s.settled = false
	s.notified = StatusStarting
}

// setStatus applies to if epoch is current. It reports whether the status changed.
func (s *requestState) setStatus(epoch uint64, to Status) bool {
	if !s.current(epoch) || s.status == to {
		return false
	}
	s.status = to
	return true
}

// beginCheck enters Checking from any state.
func (s *requestState) beginCheck(epoch uint64) bool {
	return s.setStatus(epoch, StatusChecking)
}

// checked leaves Checking with the availability result.
func (s *requestState) checked(epoch uint64, a inference.Availability) bool {
	if s.status != StatusChecking {
		return false
	}
	return s.setStatus(epoch, availabilityStatus(a))
}

// beginGeneration enters Generating and makes cancel the in-flight
// generation, cancelling any previous one. The caller has just seen the
// service ready; a concurrent Recheck may have moved the status since.
func (s *requestState) beginGeneration(epoch uint64, cancel context.CancelFunc) bool {
	if !s.current(epoch) {
		return false
	}
	if s.genCancel != nil {
		s.genCancel()
	}
	s.genEpoch = epoch
	s.genCancel = cancel
	return s.setStatus(epoch, StatusGenerating)
}

// endGeneration releases the in-flight generation started for epoch.
func (s *requestState) endGeneration(epoch uint64) {
	if s.genCancel != nil && s.genEpoch == epoch {
		s.genCancel()
		s.genCancel = nil
	}
}

// generated returns from Generating to Ready.
func (s *requestState) generated(epoch uint64) bool {
	if s.status != StatusGenerating {
		return false
	}
	return s.setStatus(epoch, StatusReady)
}

// failed enters Error.
func (s *requestState) failed(epoch uint64) bool {
	return s.setStatus(epoch, StatusError)
}

// shouldNotify reports whether an availability failure needs a notification.
// A failure is notified once until the service is seen ready again.
func (s *requestState) shouldNotify(status Status) bool {
	switch status {
	case StatusReady:
		s.notified = StatusStarting
		return false
	case StatusModelNotFound, StatusOffline:
		if s.notified == status {
			return false
		}
		s.notified = status
		return true
	}
	return false
}

// shutdown releases every waiter and cancels in-flight work.
func (s *requestState) shutdown() {
	s.supersede()
	if s.genCancel != nil {
		s.genCancel()
		s.genCancel = nil
	}
	s.epoch++
}

func availabilityStatus(a inference.Availability) Status {
	switch a {
	case inference.Ready:
		return StatusReady
	case inference.ModelNotFound:
		return StatusModelNotFound
	default:
		return StatusOffline
	}
}
