// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cockpit

import (
	"context"

	"github.com/Thermoquad/linkage/pkg/messaging"
)

// Hub fans captured frames out to every viewer. A viewer that falls behind
// misses frames rather than slowing the others down.
type Hub struct {
	broadcast  chan messaging.Frame
	register   chan chan messaging.Frame
	unregister chan chan messaging.Frame
	clients    map[chan messaging.Frame]struct{}
	clientBuf  int
	done       chan struct{}
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithBroadcastBuffer sets the publish queue size
func WithBroadcastBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan messaging.Frame, size)
		}
	}
}

// WithClientBuffer sets the per-viewer queue size
func WithClientBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

// NewHub creates a hub. Call Run before Subscribe or Publish.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		broadcast:  make(chan messaging.Frame, 256),
		register:   make(chan chan messaging.Frame),
		unregister: make(chan chan messaging.Frame),
		clients:    make(map[chan messaging.Frame]struct{}),
		clientBuf:  100,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run dispatches until ctx is done, then closes every subscription
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for ch := range h.clients {
				close(ch)
			}
			return
		case ch := <-h.register:
			h.clients[ch] = struct{}{}
		case ch := <-h.unregister:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case f := <-h.broadcast:
			for ch := range h.clients {
				select {
				case ch <- f:
				default:
				}
			}
		}
	}
}

// Subscribe registers a viewer
func (h *Hub) Subscribe(ctx context.Context) (chan messaging.Frame, bool) {
	ch := make(chan messaging.Frame, h.clientBuf)
	select {
	case h.register <- ch:
		return ch, true
	case <-h.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Unsubscribe removes a viewer and closes its channel
func (h *Hub) Unsubscribe(ctx context.Context, ch chan messaging.Frame) {
	select {
	case h.unregister <- ch:
	case <-h.done:
	case <-ctx.Done():
	}
}

// Publish queues f for every viewer, dropping it if the hub is backed up
func (h *Hub) Publish(f messaging.Frame) {
	select {
	case h.broadcast <- f:
	default:
	}
}
