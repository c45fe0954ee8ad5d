// Package conversation drives the assistant widget: it owns the entry list,
// the turn lifecycle and the selected services that ride along with the next
// outgoing message.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

type State string

const (
	StateIdle             State = "idle"
	StateSending          State = "sending"
	StateAwaitingUpstream State = "awaiting_upstream"
	StateSettled          State = "settled"
	StateFailed           State = "failed"
)

// InFlight reports whether a turn is running in this state.
func (s State) InFlight() bool {
	return s == StateSending || s == StateAwaitingUpstream
}

var (
	ErrValidation   = errors.New("validation error")
	ErrEmptyMessage = fmt.Errorf("%w: message is empty", ErrValidation)
	ErrNotReady     = fmt.Errorf("%w: no correlation id yet", ErrValidation)
	ErrBusy         = errors.New("a turn is already in flight")
	ErrTurnFailed   = errors.New("turn failed")
)

// Gateway is the proxy the machine talks to.
type Gateway interface {
	Launch(ctx context.Context, userID string) error
	SendMessage(ctx context.Context, userID, message string, services []string) ([]Step, error)
}

// TranscriptSaver accepts fire-and-forget transcript save requests.
type TranscriptSaver interface {
	SaveTranscript(userID string)
}

// IDSource yields the session correlation id.
type IDSource interface {
	GetOrCreateID(ctx context.Context) (string, bool)
}

// Logger is the subset of the application logger the machine uses.
type Logger interface {
	Warn(module, message string, details map[string]interface{})
	Error(module, message string, details map[string]interface{})
}

type nopLogger struct{}

func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}

// Snapshot is a copy of the observable machine state.
type Snapshot struct {
	CorrelationID    string   `json:"correlation_id,omitempty"`
	State            State    `json:"state"`
	Entries          []Entry  `json:"entries"`
	Input            string   `json:"input"`
	SelectedServices []string `json:"selected_services"`
	Bootstrapped     bool     `json:"bootstrapped"`
	// ScrollTo is the id of the newest entry, -1 when empty.
	ScrollTo int `json:"scroll_to"`
	// Version grows with every change; observers never see it go backwards.
	Version uint64 `json:"version"`
}

// InputEnabled mirrors what the widget shows: input is disabled while a turn is in flight.
func (s Snapshot) InputEnabled() bool {
	return !s.State.InFlight()
}

type Option func(*Machine)

func WithTranscriptSaver(saver TranscriptSaver) Option {
	return func(m *Machine) { m.transcripts = saver }
}

func WithLogger(logger Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithObserver registers a callback fired after every change of the entry list
// or the state.
func WithObserver(fn func(Snapshot)) Option {
	return func(m *Machine) {
		if fn != nil {
			m.observers = append(m.observers, fn)
		}
	}
}

// Machine is one widget instance. All mutations go through its methods; Submit
// is the only one that starts network calls.
type Machine struct {
	mu sync.Mutex

	// emitMu orders observer calls; lastEmitted is guarded by it
	emitMu      sync.Mutex
	lastEmitted uint64
	version     uint64

	gateway     Gateway
	ids         IDSource
	transcripts TranscriptSaver
	logger      Logger
	observers   []func(Snapshot)

	correlationID string
	state         State
	entries       []Entry
	input         string
	services      []string
	bootstrapped  bool
	nextEntryID   int
	turns         int
}

func NewMachine(gateway Gateway, ids IDSource, opts ...Option) *Machine {
	m := &Machine{
		gateway: gateway,
		ids:     ids,
		logger:  nopLogger{},
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetInput replaces the input buffer. It is ignored while a turn is in flight.
func (m *Machine) SetInput(text string) bool {
	m.mu.Lock()
	if m.state.InFlight() {
		m.mu.Unlock()
		return false
	}
	m.input = text
	snap := m.changedLocked()
	m.mu.Unlock()

	m.emit(snap)
	return true
}

// SelectService appends a service tag unless it is already selected.
func (m *Machine) SelectService(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return
	}
	m.mu.Lock()
	for _, s := range m.services {
		if s == tag {
			m.mu.Unlock()
			return
		}
	}
	m.services = append(m.services, tag)
	snap := m.changedLocked()
	m.mu.Unlock()

	m.emit(snap)
}

// SetSelectedServices replaces the selection made by the surrounding page.
func (m *Machine) SetSelectedServices(tags []string) {
	m.mu.Lock()
	m.services = append([]string(nil), tags...)
	snap := m.changedLocked()
	m.mu.Unlock()

	m.emit(snap)
}

// Send submits text directly, as if it had been typed into the input buffer.
func (m *Machine) Send(ctx context.Context, text string) error {
	return m.submit(ctx, &text)
}

// Submit runs one turn with the current input buffer and blocks until it is
// settled or failed. Validation failures and submissions during a running turn
// leave the machine untouched. Upstream and transport failures are turned into
// one apology entry; the returned error is for diagnostics only.
func (m *Machine) Submit(ctx context.Context) error {
	return m.submit(ctx, nil)
}

func (m *Machine) submit(ctx context.Context, override *string) error {
	m.mu.Lock()
	if m.state.InFlight() {
		m.mu.Unlock()
		return ErrBusy
	}
	raw := m.input
	if override != nil {
		raw = *override
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		m.mu.Unlock()
		return ErrEmptyMessage
	}
	if m.correlationID == "" {
		if m.ids == nil {
			m.mu.Unlock()
			return ErrNotReady
		}
		id, ok := m.ids.GetOrCreateID(ctx)
		if !ok {
			m.mu.Unlock()
			return ErrNotReady
		}
		m.correlationID = id
	}

	m.appendLocked(Entry{Origin: OriginUser, Text: text})
	m.input = ""
	m.state = StateSending
	m.appendLocked(Entry{Origin: OriginAssistant, Text: PendingMarker, Pending: true})

	userID := m.correlationID
	needLaunch := !m.bootstrapped
	services := append([]string(nil), m.services...)
	snap := m.changedLocked()
	m.mu.Unlock()
	m.emit(snap)

	if needLaunch {
		err := m.gateway.Launch(ctx, userID)
		if err != nil {
			// launch is advisory, the message turn still goes out
			m.logger.Warn("Conversation", "Launch failed, continuing with message", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
		}
		m.mu.Lock()
		m.bootstrapped = true
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.state = StateAwaitingUpstream
	snap = m.changedLocked()
	m.mu.Unlock()
	m.emit(snap)

	steps, err := m.gateway.SendMessage(ctx, userID, text, services)

	m.mu.Lock()
	m.removePendingLocked()
	if err != nil {
		m.appendLocked(Entry{Origin: OriginAssistant, Text: ApologyText})
		m.state = StateFailed
	} else {
		m.clearSentServicesLocked(services)
		for _, step := range steps {
			if e, ok := entryFromStep(step); ok {
				m.appendLocked(e)
			}
		}
		m.state = StateSettled
		m.turns++
	}
	snap = m.changedLocked()
	m.mu.Unlock()
	m.emit(snap)

	if err != nil {
		m.logger.Error("Conversation", "Turn failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrTurnFailed, err)
	}

	if m.transcripts != nil {
		m.transcripts.SaveTranscript(userID)
	}
	return nil
}

// Close asks for a final transcript save when the conversation had any turn.
func (m *Machine) Close() {
	m.mu.Lock()
	userID := m.correlationID
	turns := m.turns
	m.mu.Unlock()

	if m.transcripts != nil && userID != "" && turns > 0 {
		m.transcripts.SaveTranscript(userID)
	}
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) appendLocked(e Entry) {
	e.ID = m.nextEntryID
	m.nextEntryID++
	m.entries = append(m.entries, e)
}

func (m *Machine) removePendingLocked() {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if !e.Pending {
			kept = append(kept, e)
		}
	}
	m.entries = kept
}

// Tags picked while the turn was in flight were not sent and stay selected.
func (m *Machine) clearSentServicesLocked(sent []string) {
	sentSet := make(map[string]struct{}, len(sent))
	for _, s := range sent {
		sentSet[s] = struct{}{}
	}
	remaining := make([]string, 0)
	for _, s := range m.services {
		if _, ok := sentSet[s]; !ok {
			remaining = append(remaining, s)
		}
	}
	m.services = remaining
}

// changedLocked marks a change and returns the snapshot to emit for it.
func (m *Machine) changedLocked() Snapshot {
	m.version++
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	scrollTo := -1
	if n := len(m.entries); n > 0 {
		scrollTo = m.entries[n-1].ID
	}
	services := append([]string{}, m.services...)
	return Snapshot{
		CorrelationID:    m.correlationID,
		State:            m.state,
		Entries:          append([]Entry{}, m.entries...),
		Input:            m.input,
		SelectedServices: services,
		Bootstrapped:     m.bootstrapped,
		ScrollTo:         scrollTo,
		Version:          m.version,
	}
}

// emit runs observers outside mu, so two goroutines can race here with
// snapshots built in the other order. The older one is dropped.
func (m *Machine) emit(snap Snapshot) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()
	if snap.Version <= m.lastEmitted {
		return
	}
	m.lastEmitted = snap.Version
	for _, fn := range m.observers {
		fn(snap)
	}
}
