package event

import (
	"errors"
	"sync"
)

type Kind string

const (
	Healthy   Kind = "healthy"
	Unhealthy Kind = "unhealthy"
	Remove    Kind = "remove"
)

var ErrUnknownKind = errors.New("unknown event kind")

// Kinds lists every event kind a Bus accepts.
func Kinds() []Kind {
	return []Kind{Healthy, Unhealthy, Remove}
}

func (k Kind) Valid() bool {
	switch k {
	case Healthy, Unhealthy, Remove:
		return true
	default:
		return false
	}
}

type Handler[T any] func(T)

// Bus delivers events synchronously, in subscription order, on the
// goroutine that calls Emit. The zero value is ready to use.
type Bus[T any] struct {
	mutex    sync.RWMutex
	handlers map[Kind][]Handler[T]
}

// On subscribes h to kind.
func (b *Bus[T]) On(kind Kind, h Handler[T]) error {
	if !kind.Valid() {
		return ErrUnknownKind
	}
	if h == nil {
		return errors.New("event handler is nil")
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.handlers == nil {
		b.handlers = make(map[Kind][]Handler[T])
	}
	b.handlers[kind] = append(b.handlers[kind], h)
	return nil
}

// Emit calls every handler subscribed to kind with v.
func (b *Bus[T]) Emit(kind Kind, v T) {
	b.mutex.RLock()
	handlers := b.handlers[kind]
	b.mutex.RUnlock()

	for _, h := range handlers {
		h(v)
	}
}

// Count returns the number of handlers subscribed to kind.
func (b *Bus[T]) Count(kind Kind) int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.handlers[kind])
}
