package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/dkn-cloud-bridge/internal/hvac"
	"github.com/nerrad567/dkn-cloud-bridge/internal/infrastructure/config"
	"github.com/nerrad567/dkn-cloud-bridge/internal/infrastructure/logging"
)

// Engine errors.
var (
	ErrUnknownDevice      = errors.New("engine: unknown device")
	ErrUnsupportedMode    = errors.New("engine: mode not supported by device")
	ErrControlUnavailable = errors.New("engine: control not available in current mode")
	ErrInvalidCommand     = errors.New("engine: invalid command")
)

// CloudClient is the slice of the cloud API the engine consumes.
type CloudClient interface {
	FetchAllDevices(ctx context.Context) ([]hvac.Snapshot, error)
	SendEvent(ctx context.Context, deviceID, param, value string) error
	UpdateField(ctx context.Context, deviceID, field string, value any) error
}

// Options tunes the engine's timing behaviour.
type Options struct {
	PollInterval       time.Duration
	StaleAfter         time.Duration
	OfflineDebounce    time.Duration
	OverlayTTL         time.Duration
	ConfirmDelay       time.Duration
	EnableDualSetpoint bool
}

// OptionsFromConfig maps the sync configuration onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PollInterval:       cfg.GetPollInterval(),
		StaleAfter:         cfg.GetStaleAfter(),
		OfflineDebounce:    cfg.GetOfflineDebounce(),
		OverlayTTL:         overlayTTL(cfg),
		ConfirmDelay:       cfg.GetConfirmDelay(),
		EnableDualSetpoint: cfg.Sync.EnableDualSetpoint,
	}
}

// overlayTTLMargin keeps an optimistic overlay alive past the poll that
// should confirm it, so a confirmed write is cleared by reconciliation
// rather than expiring mid-cycle and flickering back.
const overlayTTLMargin = 2 * time.Second

// overlayTTL applies the adaptive floor: never shorter than the poll
// interval plus a margin.
func overlayTTL(cfg *config.Config) time.Duration {
	ttl := cfg.GetOverlayTTL()
	if floor := cfg.GetPollInterval() + overlayTTLMargin; ttl < floor {
		return floor
	}
	return ttl
}

// Event sources.
const (
	SourcePoll    = "poll"
	SourceCommand = "command"
)

// EventType discriminates change notifications.
type EventType int

const (
	// EventState signals that a device's effective state changed.
	EventState EventType = iota
	// EventConnectivity signals a connectivity transition.
	EventConnectivity
)

// Event is a change notification delivered to subscribers.
type Event struct {
	Type      EventType
	DeviceID  string
	State     EffectiveState
	Source    string
	CommandID string // set when Source is "command"
}

// EffectiveState is what a device looks like right now: the last
// authoritative snapshot with unexpired optimistic guesses merged over it.
type EffectiveState struct {
	Snapshot     hvac.Snapshot
	Pending      []string // overlay fields awaiting confirmation
	Connectivity Status
	ReceivedAt   time.Time // when the authoritative snapshot arrived
}

// deviceState is everything the engine tracks per device. Guarded by the
// engine mutex except tail, which the serializer manages.
type deviceState struct {
	snap       hvac.Snapshot
	receivedAt time.Time
	ov         overlay
	conn       connTracker
	tail       chan struct{} // serializer FIFO tail, nil when idle
}

// Engine synchronises devices against the cloud and serves effective state
// to downstream consumers. Create with New, then Start.
type Engine struct {
	client CloudClient
	opts   Options
	logger *logging.Logger

	mu      sync.Mutex
	devices map[string]*deviceState

	subsMu sync.RWMutex
	subs   []func(Event)

	refresh *refreshScheduler
	trigger chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	stopped sync.Once

	pollFailures int

	// Injectable for deterministic tests.
	now func() time.Time
}

// New creates an engine. Start must be called before commands or reads.
func New(client CloudClient, opts Options, logger *logging.Logger) *Engine {
	e := &Engine{
		client:  client,
		opts:    opts,
		logger:  logger.With("component", "engine"),
		devices: make(map[string]*deviceState),
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	e.refresh = newRefreshScheduler(opts.ConfirmDelay, func(string) { e.TriggerPoll() })
	return e
}

// Start performs the initial poll and launches the poll loop. A failed
// initial poll is fatal: the caller owns retry-at-startup semantics.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.pollOnce(ctx); err != nil {
		return fmt.Errorf("engine: initial poll: %w", err)
	}

	e.mu.Lock()
	count := len(e.devices)
	e.mu.Unlock()

	e.logger.Info("engine started", "devices", count, "poll_interval", e.opts.PollInterval.String())

	e.wg.Add(1)
	go e.pollLoop(ctx)
	return nil
}

// Stop tears the engine down: pending refresh timers are cancelled and
// awaited, then the poll loop drains. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopped.Do(func() {
		close(e.done)
		e.refresh.stop()
		e.wg.Wait()
		e.logger.Info("engine stopped")
	})
}

// Subscribe registers a change-notification callback. Callbacks run on
// engine goroutines and must not block; slow consumers should hand off.
func (e *Engine) Subscribe(fn func(Event)) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.subs = append(e.subs, fn)
}

func (e *Engine) notify(events []Event) {
	if len(events) == 0 {
		return
	}
	e.subsMu.RLock()
	subs := make([]func(Event), len(e.subs))
	copy(subs, e.subs)
	e.subsMu.RUnlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

// Devices lists known device IDs in stable order.
func (e *Engine) Devices() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.devices))
	for id := range e.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EffectiveState returns the merged view of one device.
func (e *Engine) EffectiveState(deviceID string) (EffectiveState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.devices[deviceID]
	if !ok {
		return EffectiveState{}, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return e.effectiveLocked(st), nil
}

// Connectivity returns the device's connectivity status.
func (e *Engine) Connectivity(deviceID string) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.devices[deviceID]
	if !ok {
		return StatusUnknown, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return st.conn.status, nil
}

// PollFailures reports consecutive failed polls, an observability signal
// for the health endpoint.
func (e *Engine) PollFailures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pollFailures
}

// effectiveLocked builds the merged state. Caller holds e.mu.
func (e *Engine) effectiveLocked(st *deviceState) EffectiveState {
	merged, pending := st.ov.merge(st.snap, e.now(), e.opts.OverlayTTL)
	sort.Strings(pending)
	return EffectiveState{
		Snapshot:     merged,
		Pending:      pending,
		Connectivity: st.conn.status,
		ReceivedAt:   st.receivedAt,
	}
}

// snapshotChanged reports whether two authoritative snapshots differ.
func snapshotChanged(a, b hvac.Snapshot) bool {
	return !reflect.DeepEqual(a, b)
}
