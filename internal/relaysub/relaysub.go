// Package relaysub maintains a reconnecting subscription against a set of
// Nostr relays, delivering gift-wrapped events addressed to a recipient
// public key onto a single bounded channel.
//
// Each relay connection is its own state machine (connecting, subscribed,
// draining, reconnecting); a relay that drops is retried on a fixed delay
// without tearing down the others. Events are deduplicated by ID within a
// single connection's lifetime before being handed to the caller; the dedup
// set resets on every reconnect, and duplicates arriving across different
// relays are caught downstream by the store's unique event_id instead.
package relaysub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bugstr-dev/bugstr/internal/nostrevent"
	"github.com/bugstr-dev/bugstr/internal/observability"
)

// State is a relay connection's place in its reconnect lifecycle.
type State int

const (
	Connecting State = iota
	Subscribed
	Draining
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case Draining:
		return "draining"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// eventChanCapacity bounds the fan-in channel so a slow consumer applies
// backpressure to relay reads rather than growing memory unboundedly.
const eventChanCapacity = 100

// ReconnectDelay is the fixed backoff between a relay disconnect and the
// next connection attempt. Fixed rather than exponential: relay outages in
// this network are typically either transient (seconds) or prolonged
// (minutes), and a fixed delay avoids the bookkeeping of per-relay backoff
// state for marginal benefit either way.
const ReconnectDelay = 5 * time.Second

// Filter describes a subscription's REQ filter.
type Filter struct {
	Kinds []int    `json:"kinds,omitempty"`
	Tags  []string `json:"#p,omitempty"`
	Limit int      `json:"limit,omitempty"`
	Since int64    `json:"since,omitempty"`
}

// Subscriber fans events in from a set of relays onto a single channel.
type Subscriber struct {
	relayURLs []string
	filter    Filter
	logger    *observability.Logger
	metrics   *observability.Metrics

	eventsCh chan *nostrevent.Event

	mu     sync.Mutex
	states map[string]State
}

// New creates a Subscriber over the given relay URLs and filter.
func New(relayURLs []string, filter Filter, logger *observability.Logger, metrics *observability.Metrics) *Subscriber {
	return &Subscriber{
		relayURLs: relayURLs,
		filter:    filter,
		logger:    logger,
		metrics:   metrics,
		eventsCh:  make(chan *nostrevent.Event, eventChanCapacity),
		states:    make(map[string]State),
	}
}

// Events returns the channel new, deduplicated events are delivered on. It
// is closed once ctx is cancelled and every relay goroutine has exited.
func (s *Subscriber) Events() <-chan *nostrevent.Event {
	return s.eventsCh
}

// State reports a relay's current connection state.
func (s *Subscriber) State(relayURL string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[relayURL]
}

func (s *Subscriber) setState(relayURL string, st State) {
	s.mu.Lock()
	s.states[relayURL] = st
	s.mu.Unlock()
}

// Run drives every relay's reconnect loop until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, url := range s.relayURLs {
		wg.Add(1)
		go func(relayURL string) {
			defer wg.Done()
			s.runRelay(ctx, relayURL)
		}(url)
	}
	wg.Wait()
	close(s.eventsCh)
}

func (s *Subscriber) runRelay(ctx context.Context, relayURL string) {
	for {
		if ctx.Err() != nil {
			s.setState(relayURL, Draining)
			return
		}

		s.setState(relayURL, Connecting)
		err := s.connectAndSubscribe(ctx, relayURL)
		if ctx.Err() != nil {
			s.setState(relayURL, Draining)
			return
		}

		if s.metrics != nil {
			s.metrics.RecordRelayConnection(err == nil)
		}
		if s.logger != nil {
			s.logger.RelayDisconnected(relayURL, err, ReconnectDelay)
		}

		s.setState(relayURL, Reconnecting)
		select {
		case <-ctx.Done():
			return
		case <-time.After(ReconnectDelay):
		}
	}
}

func (s *Subscriber) connectAndSubscribe(ctx context.Context, relayURL string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return fmt.Errorf("relaysub: dial %s: %w", relayURL, err)
	}
	defer conn.Close()

	if s.logger != nil {
		s.logger.RelayConnected(relayURL)
	}
	if s.metrics != nil {
		s.metrics.RecordRelayConnection(true)
		s.metrics.RelaysConnected.Inc()
		defer s.metrics.RelaysConnected.Dec()
	}

	subID := "bugstr-" + uuid.NewString()
	req := []interface{}{"REQ", subID, s.filter}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("relaysub: subscribe %s: %w", relayURL, err)
	}
	s.setState(relayURL, Subscribed)

	// Close the connection promptly when the context is cancelled; the
	// blocking ReadMessage below has no other way to observe cancellation.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	// seen is scoped to this single connection and discarded on reconnect;
	// cross-relay duplicates are deduplicated at the store's unique
	// event_id instead (spec §3).
	seen := make(map[string]struct{})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("relaysub: read %s: %w", relayURL, err)
		}

		s.handleMessage(relayURL, raw, seen)
	}
}

func (s *Subscriber) handleMessage(relayURL string, raw []byte, seen map[string]struct{}) {
	var envelope []json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope) < 2 {
		return
	}

	var msgType string
	if err := json.Unmarshal(envelope[0], &msgType); err != nil {
		return
	}
	if msgType != "EVENT" || len(envelope) < 3 {
		return
	}

	var evt nostrevent.Event
	if err := json.Unmarshal(envelope[2], &evt); err != nil {
		return
	}

	if s.metrics != nil {
		s.metrics.RecordEventReceived(fmt.Sprintf("%d", evt.Kind))
	}

	_, dup := seen[evt.ID]
	if !dup {
		seen[evt.ID] = struct{}{}
	}

	if dup {
		if s.metrics != nil {
			s.metrics.EventsDuplicateTotal.Inc()
		}
		if s.logger != nil {
			s.logger.EventDuplicate(evt.ID)
		}
		return
	}

	if s.logger != nil {
		s.logger.EventReceived(relayURL, evt.ID, evt.Kind)
	}

	s.eventsCh <- &evt
}
