// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/sharedscene/lib/anchorpack"
	"github.com/bureau-foundation/sharedscene/lib/capability"
	"github.com/bureau-foundation/sharedscene/lib/clock"
	"github.com/bureau-foundation/sharedscene/lib/message"
	"github.com/bureau-foundation/sharedscene/lib/participant"
	"github.com/bureau-foundation/sharedscene/lib/sessionstate"
	"github.com/bureau-foundation/sharedscene/transport"
)

// inboxSize is the capacity of the actor's closure queue.
const inboxSize = 256

// maxEarlyDeliveries bounds the datagrams held while the session has
// not yet reported StateJoined.
const maxEarlyDeliveries = 1024

// State is the coordinator's view of the session lifecycle.
type State uint8

const (
	StateIdle State = iota
	StateWaiting
	StateJoined
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateJoined:
		return "joined"
	case StateInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Coordinator keeps one participant's scene state in sync with the
// rest of the session. All session-mutable state is owned by the
// goroutine running Run; public methods submit closures to it and wait
// for the result.
type Coordinator struct {
	session  transport.Session
	delegate Delegate
	options  Options
	clock    clock.Clock
	logger   *slog.Logger
	local    participant.ID

	inbox   chan func()
	done    chan struct{}
	joined  chan struct{}
	started atomic.Bool
	pumps   sync.WaitGroup

	// Everything below is owned by the actor goroutine.

	state    State
	store    *sessionstate.Store
	registry *capability.Registry
	members  map[participant.ID]transport.Member
	host     bool

	receivedState bool
	handshakeSent bool
	joinedClosed  bool

	// seeded is set once this participant holds state it may share:
	// a full sync arrived, or it was joined with nobody else to ask.
	// An unseeded host asks for state instead of pushing its own.
	seeded bool

	pending pendingEdits

	// early holds datagrams that arrived before StateJoined. They are
	// dispatched before deciding whether to request state, so a
	// welcome that raced ahead of the join event satisfies it.
	early []earlyDelivery

	// resyncGeneration invalidates late-join timer fires that were
	// already queued when the chain was cancelled.
	resyncGeneration uint64
	resyncTimer      *clock.Timer
	resyncActive     bool

	// followups are pending host re-sends to new members, keyed by
	// the timer that fires them.
	followups map[*clock.Timer]struct{}

	limiter *transformLimiter

	// anchor is the most recent anchor shared by any participant,
	// with AnchorData unpacked. Kept so a participant that becomes
	// host can re-share it.
	anchor *message.Anchor

	// anchorDelivered records, per recipient, the digest of the last
	// anchor data sent to it.
	anchorDelivered map[participant.ID]anchorpack.Digest
}

// New creates a coordinator for session. Call Run to start it.
func New(session transport.Session, delegate Delegate, options Options) (*Coordinator, error) {
	if session == nil {
		return nil, errors.New("coordinator requires a transport session")
	}
	if delegate == nil {
		delegate = NopDelegate{}
	}
	options = options.withDefaults()
	local := session.LocalParticipant()
	if local.IsZero() {
		return nil, errors.New("transport session has no local participant ID")
	}

	return &Coordinator{
		session:         session,
		delegate:        delegate,
		options:         options,
		clock:           options.Clock,
		logger:          options.Logger.With("participant", local),
		local:           local,
		inbox:           make(chan func(), inboxSize),
		done:            make(chan struct{}),
		joined:          make(chan struct{}),
		state:           StateIdle,
		store:           sessionstate.New(),
		registry:        capability.NewRegistry(local),
		members:         make(map[participant.ID]transport.Member),
		followups:       make(map[*clock.Timer]struct{}),
		pending:         newPendingEdits(),
		limiter:         newTransformLimiter(options.TransformRateHz, options.Clock),
		anchorDelivered: make(map[participant.ID]anchorpack.Digest),
	}, nil
}

// Run processes transport events, inbound datagrams, timers and local
// operations until the session is invalidated or ctx is cancelled. On
// cancellation the coordinator leaves the session. Returns nil after
// invalidation and ctx.Err() after cancellation.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("coordinator is already running")
	}
	defer close(c.done)

	pumpContext, stopPumps := context.WithCancel(ctx)
	defer stopPumps()
	c.startPumps(pumpContext)

	for {
		select {
		case fn := <-c.inbox:
			fn()
			if c.state == StateInvalidated {
				c.teardown(stopPumps)
				return nil
			}
		case <-ctx.Done():
			if err := c.session.Leave(); err != nil {
				c.logger.Warn("leaving session failed", "error", err)
			}
			c.enterInvalidated(nil)
			c.teardown(stopPumps)
			return ctx.Err()
		}
	}
}

// Done is closed when Run returns.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Joined is closed the first time the session reports StateJoined.
func (c *Coordinator) Joined() <-chan struct{} { return c.joined }

// LocalParticipant returns this participant's ID.
func (c *Coordinator) LocalParticipant() participant.ID { return c.local }

// startPumps forwards transport events and both inbound channels into
// the inbox. Each pump hands over one item at a time.
func (c *Coordinator) startPumps(ctx context.Context) {
	c.pumps.Add(3)
	go func() {
		defer c.pumps.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-c.session.Events():
				if !c.postFrom(ctx, func() { c.handleEvent(event) }) {
					return
				}
			}
		}
	}()
	for _, channel := range []transport.Channel{transport.Reliable, transport.Unreliable} {
		go func() {
			defer c.pumps.Done()
			inbound := c.session.Inbound(channel)
			for {
				select {
				case <-ctx.Done():
					return
				case delivery := <-inbound:
					if !c.postFrom(ctx, func() { c.dispatch(channel, delivery) }) {
						return
					}
				}
			}
		}()
	}
}

// postFrom queues fn unless ctx ends first.
func (c *Coordinator) postFrom(ctx context.Context, fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-ctx.Done():
		return false
	}
}

// post queues fn from a timer callback. Dropped once Run has returned.
func (c *Coordinator) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

// do runs fn on the actor and returns its error. Returns
// ErrInvalidated once Run has returned, or ctx.Err().
func (c *Coordinator) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case c.inbox <- func() { result <- fn() }:
	case <-c.done:
		return ErrInvalidated
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-c.done:
		// The closure may have been the one that ended the session.
		select {
		case err := <-result:
			return err
		default:
			return ErrInvalidated
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// query runs fn on the actor and returns its value.
func query[T any](ctx context.Context, c *Coordinator, fn func() T) (T, error) {
	var value T
	err := c.do(ctx, func() error {
		value = fn()
		return nil
	})
	return value, err
}

// State returns the current lifecycle state.
func (c *Coordinator) State(ctx context.Context) (State, error) {
	return query(ctx, c, func() State { return c.state })
}

// IsHost reports whether this participant is currently the host.
func (c *Coordinator) IsHost(ctx context.Context) (bool, error) {
	return query(ctx, c, func() bool { return c.host })
}

// Members returns the active remote participants in ascending ID order.
func (c *Coordinator) Members(ctx context.Context) ([]transport.Member, error) {
	return query(ctx, c, c.sortedMembers)
}

// Snapshot returns a copy of every model instance, sorted by ID. Since
// the actor processes work in arrival order, a Snapshot also waits for
// everything queued before it.
func (c *Coordinator) Snapshot(ctx context.Context) ([]sessionstate.ModelInstance, error) {
	return query(ctx, c, c.store.Snapshot)
}

// ReferenceAnchor returns the current reference anchor ID.
func (c *Coordinator) ReferenceAnchor(ctx context.Context) (string, error) {
	return query(ctx, c, c.store.ReferenceAnchor)
}

// PeerCapabilities returns the capabilities a remote participant
// advertised, if it has sent a handshake.
func (c *Coordinator) PeerCapabilities(ctx context.Context, id participant.ID) (capability.Set, bool, error) {
	type entry struct {
		set capability.Set
		ok  bool
	}
	result, err := query(ctx, c, func() entry {
		set, ok := c.registry.CapabilitiesOf(id)
		return entry{set, ok}
	})
	return result.set, result.ok, err
}
