package session

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Hook is a side-effect recorder that follows the lock flag, such as a
// companion video capture. OnLock is called after the flag is set,
// OnUnlock after it is cleared. Both may be called repeatedly and must be
// idempotent.
type Hook interface {
	Name() string
	OnLock() error
	OnUnlock() error
}

// hookRegistry invokes hooks in registration order. A failing or
// panicking hook is logged and does not prevent the others from running.
type hookRegistry struct {
	mu    sync.Mutex
	hooks []Hook
}

func (r *hookRegistry) add(h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
}

func (r *hookRegistry) snapshot() []Hook {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Hook(nil), r.hooks...)
}

func (r *hookRegistry) fire(log zerolog.Logger, event string, call func(Hook) error) {
	for _, h := range r.snapshot() {
		if err := invokeHook(h, call); err != nil {
			log.Warn().Err(err).Str("hook", h.Name()).Str("event", event).Msg("session hook failed")
		}
	}
}

func invokeHook(h Hook, call func(Hook) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return call(h)
}
