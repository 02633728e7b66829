package conn

import (
	"sync"
	"time"

	"github.com/grindwise/grindlink-core/internal/infrastructure/logging"
	"github.com/grindwise/grindlink-core/internal/infrastructure/prefs"
)

// Link is the transport capability a Manager drives.
//
// Connect and IsConnected must be non-blocking: Connect begins an attempt
// and returns, IsConnected reports the last observed transport state, and
// progress is made by the Manager polling IsConnected from Handle. Teardown
// may block for a bounded time (a graceful broker disconnect flushes a
// final message); the Manager only ever calls it outside its mutex.
type Link interface {
	Connect() error
	IsConnected() bool
	Teardown()
}

// StatusCallback is invoked synchronously on every state change, after the
// state field is updated and before any network I/O resulting from the
// transition. It runs under the manager's mutex and must not call back into
// the manager.
type StatusCallback func(Status)

// Options configures a Manager.
type Options struct {
	// Name identifies the link in log output ("wifi", "mqtt").
	Name string

	// EnabledKey is the preferences key holding the persisted enabled flag.
	EnabledKey string

	// ConnectTimeout bounds how long a single attempt may sit in
	// StatusConnecting before it is abandoned.
	ConnectTimeout time.Duration

	// Backoff is the reconnect delay policy.
	Backoff Backoff

	// MaxAttempts is the reconnect attempt ceiling for one failure episode.
	// After it is reached the manager gives up into StatusFailed until the
	// next Disable/Enable cycle. Zero means retry indefinitely.
	MaxAttempts int

	// HasConfig reports whether the link has a usable configuration.
	// A manager with no config never initiates a transport attempt.
	HasConfig func() bool

	// Prereq, when non-nil, gates all connection activity. While it reports
	// false the manager sits in StatusFailed without touching the transport.
	// The MQTT manager passes the WiFi manager's IsConnected here.
	Prereq func() bool

	// OnConnected runs after the transition into StatusConnected, outside
	// the manager mutex. It may perform transport I/O.
	OnConnected func()

	// OnConnectedTick runs on every Handle call that finds the link still
	// connected, outside the manager mutex. The MQTT manager drains its
	// publish queue here.
	OnConnectedTick func()

	// OnDisable runs after the transition into StatusDisabled, outside the
	// manager mutex.
	OnDisable func()

	// Clock overrides time.Now, for tests.
	Clock func() time.Time

	Logger *logging.Logger
}

// Manager owns the connection state machine for one link.
//
// A single periodic driver is expected to call Handle on a steady cadence;
// every method is nevertheless safe for concurrent use. The mutex is held
// across state reads and transitions only, never across transport I/O:
// Teardown and the OnConnected/OnConnectedTick/OnDisable hooks run after
// the lock is released, so a slow broker cannot stall concurrent callers.
type Manager struct {
	mu   sync.Mutex
	link Link

	name           string
	store          *prefs.Store
	enabledKey     string
	connectTimeout time.Duration
	backoff        Backoff
	maxAttempts    int

	hasConfig       func() bool
	prereq          func() bool
	onConnected     func()
	onConnectedTick func()
	onDisable       func()
	now             func() time.Time
	log             *logging.Logger

	enabled  bool
	status   Status
	retry    retryState
	statusCB StatusCallback
}

// NewManager creates a Manager for the given link. The store may be nil, in
// which case the enabled flag is not persisted and Init does nothing.
func NewManager(link Link, store *prefs.Store, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Name != "" {
		logger = logger.With("link", opts.Name)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	hasConfig := opts.HasConfig
	if hasConfig == nil {
		hasConfig = func() bool { return true }
	}

	m := &Manager{
		link:            link,
		name:            opts.Name,
		store:           store,
		enabledKey:      opts.EnabledKey,
		connectTimeout:  opts.ConnectTimeout,
		backoff:         opts.Backoff,
		maxAttempts:     opts.MaxAttempts,
		hasConfig:       hasConfig,
		prereq:          opts.Prereq,
		onConnected:     opts.OnConnected,
		onConnectedTick: opts.OnConnectedTick,
		onDisable:       opts.OnDisable,
		now:             clock,
		log:             logger,
		status:          StatusDisabled,
	}
	m.retry.reset(m.backoff)
	return m
}

// Init loads the persisted enabled flag and, if the link is both enabled and
// configured, proceeds directly to Enable. Without a store the manager stays
// disabled.
func (m *Manager) Init() {
	if m.store == nil {
		m.log.Warn("no preferences store, link stays disabled")
		return
	}

	enabled := m.store.GetBool(m.enabledKey, false)
	m.log.Info("initialised", "enabled", enabled, "configured", m.hasConfig())

	if enabled && m.hasConfig() {
		m.Enable()
	}
}

// Enable turns the link on and starts the first connection attempt.
//
// Without a valid configuration it transitions to StatusFailed and returns
// with no side effects on the transport; exiting that state requires
// reconfiguration, not a timer. A call on an already-enabled manager is a
// logged no-op.
func (m *Manager) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enabled && m.status != StatusDisabled {
		m.log.Info("already enabled")
		return
	}

	if !m.hasConfig() {
		m.log.Error("cannot enable: not configured")
		m.setStatus(StatusFailed)
		return
	}

	m.log.Info("enabling")
	m.enabled = true
	m.persistEnabled(true)
	m.retry.reset(m.backoff)
	m.attemptConnect()
}

// Disable tears down the transport and transitions to StatusDisabled
// unconditionally. It is the only cancellation primitive: any in-flight
// attempt is abandoned, and the MQTT manager's pending publishes are
// discarded via the OnDisable hook.
func (m *Manager) Disable() {
	m.mu.Lock()

	if !m.enabled && m.status == StatusDisabled {
		m.log.Info("already disabled")
		m.mu.Unlock()
		return
	}

	m.log.Info("disabling")
	m.enabled = false
	m.persistEnabled(false)
	m.setStatus(StatusDisabled)
	m.mu.Unlock()

	m.link.Teardown()

	if m.onDisable != nil {
		m.onDisable()
	}
}

// Shutdown tears down a live transport without persisting the enabled flag
// or firing callbacks. Used on process exit: stopping the daemon is not an
// operator disable.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	teardown := m.status == StatusConnected || m.status == StatusConnecting
	m.enabled = false
	m.status = StatusDisabled
	m.mu.Unlock()

	if teardown {
		m.link.Teardown()
	}
}

// Handle advances the state machine by one tick. It must be invoked on a
// steady cadence by the surrounding scheduler, returns within a bounded
// time, and is a no-op while disabled.
//
// Transitions are decided under the mutex; the resulting transport work
// (teardown, the connected hooks) runs after it is released, so other
// goroutines reading or publishing are never stalled behind broker I/O.
func (m *Manager) Handle() {
	m.mu.Lock()

	if !m.enabled {
		m.mu.Unlock()
		return
	}

	if m.prereq != nil && !m.prereq() {
		if m.status != StatusFailed {
			m.log.Warn("prerequisite link lost")
			m.setStatus(StatusFailed)
		}
		m.mu.Unlock()
		return
	}

	var teardown, connected, connectedTick bool

	switch m.status {
	case StatusConnecting:
		switch {
		case m.link.IsConnected():
			m.setStatus(StatusConnected)
			m.retry.reset(m.backoff)
			connected = true
		case m.now().Sub(m.retry.lastAttempt) > m.connectTimeout:
			m.log.Warn("connect timeout")
			m.setStatus(StatusDisconnected)
			teardown = true
		}

	case StatusConnected:
		if !m.link.IsConnected() {
			m.log.Warn("connection lost")
			m.setStatus(StatusDisconnected)
			m.retry.reset(m.backoff)
			m.handleReconnect()
		} else {
			connectedTick = true
		}

	case StatusDisconnected, StatusFailed:
		m.handleReconnect()

	case StatusDisabled:
		// Unreachable while enabled.
	}

	m.mu.Unlock()

	switch {
	case teardown:
		m.link.Teardown()
		// The reconnect decision for a timed-out attempt waits until the
		// stale session is torn down, then runs on this same tick.
		m.mu.Lock()
		if m.enabled && m.status == StatusDisconnected {
			m.handleReconnect()
		}
		m.mu.Unlock()

	case connected && m.onConnected != nil:
		m.onConnected()

	case connectedTick && m.onConnectedTick != nil:
		m.onConnectedTick()
	}
}

// handleReconnect retries the connection once the backoff interval has
// elapsed, honouring the attempt ceiling. Caller holds the mutex.
func (m *Manager) handleReconnect() {
	if m.maxAttempts > 0 && m.retry.attempts >= m.maxAttempts {
		if m.status != StatusFailed {
			m.log.Warn("max reconnect attempts reached", "attempts", m.retry.attempts)
			m.setStatus(StatusFailed)
		}
		return
	}

	if m.now().Sub(m.retry.lastAttempt) < m.retry.interval {
		return
	}

	m.retry.attempts++
	m.retry.interval = m.backoff.Interval(m.retry.attempts)
	m.log.Info("reconnect attempt",
		"attempt", m.retry.attempts,
		"next_interval", m.retry.interval,
	)
	m.attemptConnect()
}

// attemptConnect starts one connection attempt. Caller holds the mutex.
func (m *Manager) attemptConnect() {
	if !m.hasConfig() {
		m.log.Error("cannot connect: not configured")
		m.setStatus(StatusFailed)
		return
	}
	if m.prereq != nil && !m.prereq() {
		m.log.Warn("cannot connect: prerequisite link down")
		m.setStatus(StatusFailed)
		return
	}

	m.setStatus(StatusConnecting)
	m.retry.lastAttempt = m.now()

	if err := m.link.Connect(); err != nil {
		m.log.Warn("connect attempt failed", "error", err)
		m.setStatus(StatusDisconnected)
	}
}

// setStatus updates the state and fires the observer if the state changed.
// Caller holds the mutex.
func (m *Manager) setStatus(status Status) {
	if m.status == status {
		return
	}
	m.status = status
	m.log.Info("status changed", "status", status.String())

	if m.statusCB != nil {
		m.statusCB(status)
	}
}

// persistEnabled writes the enabled flag to the preferences store.
func (m *Manager) persistEnabled(enabled bool) {
	if m.store == nil {
		return
	}
	if err := m.store.PutBool(m.enabledKey, enabled); err != nil {
		m.log.Error("persisting enabled flag", "error", err)
	}
}

// SetStatusCallback replaces the sole observer. The callback fires on state
// changes only, never on no-op calls.
func (m *Manager) SetStatusCallback(cb StatusCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCB = cb
}

// Status returns the current connection state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Enabled reports whether the link is administratively on.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// IsConnected reports whether the link is in StatusConnected.
func (m *Manager) IsConnected() bool {
	return m.Status() == StatusConnected
}
