package rnode

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

type PubSubQueue[T any] interface {
	On(func(message T)) (cleanup func())
	Broadcast(message T)
	// Wait blocks until every broadcast message has been handled.
	Wait(timeout time.Duration) error
	Close()
}

const subscriberBuffer = 100

type subscriber[T any] struct {
	messages chan T
	callback func(message T)
}

type queue[T any] struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber[T]
	nextId      int
	closed      bool

	// Messages handed to subscribers but not yet handled, and the Wait
	// calls to release when that drops to zero.
	pendingMu sync.Mutex
	pending   int
	waiters   []chan struct{}
}

func NewQueue[T any]() PubSubQueue[T] {
	return &queue[T]{
		subscribers: make(map[int]*subscriber[T]),
	}
}

func (q *queue[T]) On(callback func(message T)) (cleanup func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return func() {}
	}

	id := q.nextId
	q.nextId++

	sub := &subscriber[T]{
		messages: make(chan T, subscriberBuffer),
		callback: callback,
	}
	q.subscribers[id] = sub

	go func() {
		for msg := range sub.messages {
			sub.callback(msg)
			q.handled()
		}
	}()

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if s, exists := q.subscribers[id]; exists {
			delete(q.subscribers, id)
			close(s.messages)
		}
	}
}

func (q *queue[T]) Broadcast(message T) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed || len(q.subscribers) == 0 {
		return
	}

	q.pendingMu.Lock()
	q.pending += len(q.subscribers)
	q.pendingMu.Unlock()

	for _, sub := range q.subscribers {
		select {
		case sub.messages <- message:
		default:
			// Subscriber is behind, deliver out of order.
			go func(s *subscriber[T]) {
				s.callback(message)
				q.handled()
			}(sub)
		}
	}
}

func (q *queue[T]) handled() {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()

	q.pending--
	if q.pending > 0 {
		return
	}
	for _, w := range q.waiters {
		close(w)
	}
	q.waiters = nil
}

func (q *queue[T]) Wait(timeout time.Duration) error {
	q.pendingMu.Lock()
	if q.pending == 0 {
		q.pendingMu.Unlock()
		return nil
	}
	done := make(chan struct{})
	q.waiters = append(q.waiters, done)
	q.pendingMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()

	for i, w := range q.waiters {
		if w == done {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return errors.New("timeout waiting for messages to be processed")
		}
	}

	// Released between the timer firing and taking the lock.
	return nil
}

func (q *queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true

	for id, sub := range q.subscribers {
		close(sub.messages)
		delete(q.subscribers, id)
	}
}

type DeployEventKind string

const (
	DeployEventSubmitted DeployEventKind = "submitted"
	DeployEventProposed  DeployEventKind = "proposed"
	DeployEventFinalized DeployEventKind = "finalized"
)

// DeployEvent reports progress of a deploy through the node.
type DeployEvent struct {
	Kind      DeployEventKind `json:"kind"`
	DeployId  string          `json:"deployId"`
	BlockHash string          `json:"blockHash,omitempty"`
	Time      time.Time       `json:"time"`
}
