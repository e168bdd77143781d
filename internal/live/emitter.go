package live

import (
	"sync"

	"github.com/rs/zerolog"
)

// emitter queues host callbacks and delivers them in order from whichever goroutine
// flushes first. Events are pushed while the session lock is held and delivered
// after it is released.
type emitter struct {
	cb     Callbacks
	logger zerolog.Logger

	mu    sync.Mutex
	queue []func()

	deliver sync.Mutex
}

func newEmitter(cb Callbacks, logger zerolog.Logger) *emitter {
	return &emitter{cb: cb, logger: logger}
}

func (e *emitter) push(fn func()) {
	e.mu.Lock()
	e.queue = append(e.queue, fn)
	e.mu.Unlock()
}

func (e *emitter) status(s Status) {
	if e.cb.OnStatusChange != nil {
		e.push(func() { e.cb.OnStatusChange(s) })
	}
}

func (e *emitter) userTranscript(text string) {
	if e.cb.OnUserTranscript != nil {
		e.push(func() { e.cb.OnUserTranscript(text) })
	}
}

func (e *emitter) jarvisTranscript(text string) {
	if e.cb.OnJarvisTranscript != nil {
		e.push(func() { e.cb.OnJarvisTranscript(text) })
	}
}

func (e *emitter) message(m Message) {
	if e.cb.OnMessage != nil {
		e.push(func() { e.cb.OnMessage(m) })
	}
}

func (e *emitter) error(msg string) {
	if e.cb.OnError != nil {
		e.push(func() { e.cb.OnError(msg) })
	}
}

// flush delivers queued callbacks. A flush from inside a callback returns at once;
// the outer delivery loop picks up whatever it queued.
func (e *emitter) flush() {
	for {
		if !e.deliver.TryLock() {
			return
		}
		for {
			fn, ok := e.next()
			if !ok {
				break
			}
			e.call(fn)
		}
		e.deliver.Unlock()

		// an event pushed after our last check may have lost the TryLock race
		e.mu.Lock()
		empty := len(e.queue) == 0
		e.mu.Unlock()
		if empty {
			return
		}
	}
}

func (e *emitter) next() (func(), bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return nil, false
	}
	fn := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return fn, true
}

func (e *emitter) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("Session callback panicked")
		}
	}()
	fn()
}
