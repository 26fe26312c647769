// Package events provides the in-process event bus used by the pipeline
// stages to report progress without coupling to their consumers.
package events

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/tunegrab/tunegrab/internal/logger"
)

const recentBufferSize = 100

// EventBus publishes pipeline events to subscribers.
type EventBus interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Publish(ctx context.Context, event Event) error
	PublishAsync(event Event) error
	Subscribe(filter EventFilter, handler EventHandler) (*Subscription, error)
	Unsubscribe(subscriptionID string) error
	RecentEvents() []Event
	Health() error
}

type eventBus struct {
	bufferSize int

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	eventChannel  chan Event
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup

	recentEvents []Event
}

// NewEventBus creates a bus with the given channel buffer size.
func NewEventBus(bufferSize int) EventBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &eventBus{
		bufferSize:    bufferSize,
		subscriptions: make(map[string]*Subscription),
		eventChannel:  make(chan Event, bufferSize),
		recentEvents:  make([]Event, 0, recentBufferSize),
		stopCh:        make(chan struct{}),
	}
}

func (eb *eventBus) Start(ctx context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.running {
		return fmt.Errorf("event bus is already running")
	}
	eb.running = true
	eb.stopCh = make(chan struct{})

	eb.wg.Add(1)
	go eb.processEvents(ctx)

	logger.Info("event bus started", []logger.Field{logger.Int("buffer_size", eb.bufferSize)})
	return nil
}

func (eb *eventBus) Stop(ctx context.Context) error {
	eb.mu.Lock()
	if !eb.running {
		eb.mu.Unlock()
		return nil
	}
	eb.running = false
	eb.mu.Unlock()

	close(eb.stopCh)

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warn("event bus stop timed out")
		return ctx.Err()
	}
}

func (eb *eventBus) Publish(ctx context.Context, event Event) error {
	if err := eb.prepare(&event); err != nil {
		return err
	}

	select {
	case eb.eventChannel <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		logger.Warn("event channel full, dropping event", []logger.Field{
			logger.String("event_type", string(event.Type)),
		})
		return fmt.Errorf("event channel full")
	}
}

func (eb *eventBus) PublishAsync(event Event) error {
	if err := eb.prepare(&event); err != nil {
		return err
	}

	select {
	case eb.eventChannel <- event:
		return nil
	default:
		logger.Warn("event channel full, dropping event (async)", []logger.Field{
			logger.String("event_type", string(event.Type)),
		})
		return fmt.Errorf("event channel full")
	}
}

func (eb *eventBus) prepare(event *Event) error {
	eb.mu.RLock()
	running := eb.running
	eb.mu.RUnlock()
	if !running {
		return fmt.Errorf("event bus is not running")
	}

	if event.ID == "" {
		event.ID = generateID("evt")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.Source == "" {
		return fmt.Errorf("event source is required")
	}
	return nil
}

func (eb *eventBus) Subscribe(filter EventFilter, handler EventHandler) (*Subscription, error) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &Subscription{
		ID:      generateID("sub"),
		Filter:  filter,
		Handler: handler,
		Created: time.Now(),
	}
	eb.subscriptions[sub.ID] = sub
	return sub, nil
}

func (eb *eventBus) Unsubscribe(subscriptionID string) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, exists := eb.subscriptions[subscriptionID]; !exists {
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	delete(eb.subscriptions, subscriptionID)
	return nil
}

func (eb *eventBus) RecentEvents() []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	out := make([]Event, len(eb.recentEvents))
	copy(out, eb.recentEvents)
	return out
}

func (eb *eventBus) Health() error {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if !eb.running {
		return fmt.Errorf("event bus is not running")
	}
	usage := float64(len(eb.eventChannel)) / float64(cap(eb.eventChannel))
	if usage > 0.9 {
		return fmt.Errorf("event channel is %d%% full", int(usage*100))
	}
	return nil
}

func (eb *eventBus) processEvents(ctx context.Context) {
	defer eb.wg.Done()

	for {
		select {
		case <-eb.stopCh:
			return
		case <-ctx.Done():
			return
		case event, ok := <-eb.eventChannel:
			if !ok {
				return
			}
			eb.handleEvent(event)
		}
	}
}

func (eb *eventBus) handleEvent(event Event) {
	eb.mu.Lock()
	eb.recentEvents = append(eb.recentEvents, event)
	if len(eb.recentEvents) > recentBufferSize {
		eb.recentEvents = eb.recentEvents[1:]
	}

	var matching []*Subscription
	for _, sub := range eb.subscriptions {
		if sub.Filter.Matches(event) {
			matching = append(matching, sub)
		}
	}
	eb.mu.Unlock()

	for _, sub := range matching {
		eb.notify(sub, event)
	}
}

func (eb *eventBus) notify(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in event handler", []logger.Field{
				logger.String("subscription_id", sub.ID),
				logger.String("event_id", event.ID),
			})
		}
	}()

	if err := sub.Handler(event); err != nil {
		logger.Error("event handler error", []logger.Field{
			logger.String("subscription_id", sub.ID),
			logger.Err(err),
		})
		return
	}

	eb.mu.Lock()
	sub.TriggerCount++
	eb.mu.Unlock()
}

func generateID(prefix string) string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(bytes))
}
