// Package notify resolves and drives the channels used to reach account holders.
package notify

import (
	"context"
	"sync"
)

// Message is the four-field notification every channel knows how to send.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Channel delivers messages through one medium.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher maps preference keys to channels and always has a default to fall back on.
type Dispatcher struct {
	mu       sync.RWMutex
	def      Channel
	channels map[string]Channel
}

// NewDispatcher returns a dispatcher whose fallback is def. def is also registered under its own name.
func NewDispatcher(def Channel, others ...Channel) *Dispatcher {
	d := &Dispatcher{def: def, channels: make(map[string]Channel)}
	d.Register(def)
	for _, c := range others {
		d.Register(c)
	}
	return d
}

// Register adds or replaces the channel stored under c.Name().
func (d *Dispatcher) Register(c Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[c.Name()] = c
}

// Default returns the fallback channel.
func (d *Dispatcher) Default() Channel {
	return d.def
}

// Resolve returns the channel registered for preference, or the default channel.
func (d *Dispatcher) Resolve(preference string) Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.channels[preference]; ok {
		return c
	}
	return d.def
}
