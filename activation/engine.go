package activation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/beatconnect/sdk-go/machineid"
)

// Engine is the license activation state machine. One engine per plugin
// processor instance; see the package documentation for ownership rules.
//
// The zero value is an unconfigured engine whose operations all return
// StatusNotConfigured. Use New to construct a configured one.
type Engine struct {
	cfg       Config
	transport *Transport
	store     *Store
	dbg       *debugLog
	machineID func() string

	mu         sync.Mutex
	configured bool
	activated  bool
	info       Info
	metrics    *Metrics

	limiter *rate.Limiter
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	stop    chan struct{}
	closed  sync.Once
}

// New creates a configured engine: it validates the configuration,
// derives the state path, and loads any persisted activation state.
//
// When cfg.ValidateOnStartup is set and a cached activation was loaded,
// a background validation is scheduled. It never runs synchronously -
// plugin hosts may forbid network I/O while scanning plugins - and its
// failure is only visible through later IsActivated reads.
func New(cfg Config) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbg, err := newDebugLog(cfg)
	if err != nil {
		// Debug logging must never block plugin construction.
		slog.Warn("debug log unavailable, continuing without it",
			slog.String("plugin_id", cfg.PluginID),
			slog.String("error", err.Error()),
		)
		dbg = &debugLog{logger: slog.New(discardHandler())}
	}

	statePath, err := cfg.statePath()
	if err != nil {
		dbg.close()
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		dbg:       dbg,
		machineID: machineid.Generate,
		transport: NewTransport(cfg, dbg.logger),
		limiter:   rate.NewLimiter(rate.Limit(cfg.ActivateRPS), cfg.ActivateBurst),
		sem:       semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		stop:      make(chan struct{}),
	}
	e.store = NewStore(statePath, cfg.ExistenceOnlyLoad, e.currentMachineID, dbg.logger)

	info, activated := e.store.Load()
	e.configured = true
	e.activated = activated
	e.info = info

	dbg.logger.Info("engine configured",
		slog.String("state_path", statePath),
		slog.Bool("cached_activation", activated),
		slog.Bool("existence_only_load", cfg.ExistenceOnlyLoad),
	)

	// An existence-only load carries no activation code, so there is
	// nothing the server could validate.
	if cfg.ValidateOnStartup && activated && info.ActivationCode != "" {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.Validate(context.Background())
		}()
	}
	if cfg.RevalidateInterval > 0 {
		e.wg.Add(1)
		go e.revalidateLoop()
	}

	return e, nil
}

// Close stops background revalidation and waits for in-flight async
// operations, then releases the debug log.
func (e *Engine) Close() {
	e.closed.Do(func() {
		close(e.stop)
		e.wg.Wait()
		if e.dbg != nil {
			e.dbg.close()
		}
	})
}

// IsConfigured reports whether the engine was built from a valid Config.
func (e *Engine) IsConfigured() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.configured
}

// IsActivated is the fast local activation check: no network, no disk.
// True iff an activation is cached and the server has not invalidated it.
func (e *Engine) IsActivated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activated && e.info.IsValid
}

// ActivationInfo returns a copy of the cached activation record. The
// boolean is false when nothing is activated.
func (e *Engine) ActivationInfo() (Info, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.activated {
		return Info{}, false
	}
	return e.info, true
}

// MachineID returns the fingerprint activations are bound to.
func (e *Engine) MachineID() string {
	return e.currentMachineID()
}

// DebugLogPath returns the debug log location, empty when debug logging
// is disabled.
func (e *Engine) DebugLogPath() string {
	if e.dbg == nil {
		return ""
	}
	return e.dbg.path
}

// StatePath returns where activation state is persisted.
func (e *Engine) StatePath() string {
	if e.store == nil {
		return ""
	}
	return e.store.Path()
}

// SetMetrics attaches Prometheus instrumentation to the engine.
func (e *Engine) SetMetrics(m *Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// Activate binds code to this machine via the licensing API. On
// StatusValid the activation record is cached and persisted; any other
// status leaves local state untouched.
//
// Activating again with the code that is already active short-circuits
// to StatusAlreadyActive without a network call. A different code is
// sent to the server and, on success, replaces the current record.
func (e *Engine) Activate(ctx context.Context, code string) Status {
	if !e.IsConfigured() {
		return StatusNotConfigured
	}

	e.mu.Lock()
	if e.activated && e.info.IsValid && e.info.ActivationCode == code {
		e.mu.Unlock()
		e.dbg.logger.Debug("activate skipped, code already active")
		return StatusAlreadyActive
	}
	e.mu.Unlock()

	// Attempts are throttled, not rejected, so the closed status set
	// stays intact under rapid UI retries.
	if err := e.limiter.Wait(ctx); err != nil {
		return StatusNetworkError
	}

	machineID := e.currentMachineID()
	e.dbg.logger.Info("activate requested",
		slog.String("machine_id", truncateID(machineID)),
		slog.Int("code_format", int(DetectCodeFormat(code))),
	)

	status, info := e.transport.Activate(ctx, code, machineID)
	e.getMetrics().recordActivate(status)
	if status != StatusValid {
		e.dbg.logger.Warn("activate failed", slog.String("status", status.label()))
		return status
	}

	e.mu.Lock()
	e.info = info
	e.activated = true
	e.mu.Unlock()

	if err := e.store.Save(info); err != nil {
		// Server-side activation succeeded; a persistence failure only
		// costs the cache on next start.
		e.dbg.logger.Warn("failed to persist activation state",
			slog.String("error", err.Error()),
		)
	}

	e.dbg.logger.Info("activated",
		slog.Int("current_activations", info.CurrentActivations),
		slog.Int("max_activations", info.MaxActivations),
	)
	return StatusValid
}

// Deactivate releases this machine's activation slot. Local state is
// cleared only after the server confirms: a transport or server failure
// leaves the activation intact, so deactivation is always explicit and
// server-acknowledged.
func (e *Engine) Deactivate(ctx context.Context) Status {
	if !e.IsConfigured() {
		return StatusNotConfigured
	}

	e.mu.Lock()
	// Existence-only loads carry no code; the server has nothing to
	// release and would reject the empty request.
	if !e.activated || e.info.ActivationCode == "" {
		e.mu.Unlock()
		return StatusNotActivated
	}
	code := e.info.ActivationCode
	machineID := e.info.MachineID
	e.mu.Unlock()

	status := e.transport.Deactivate(ctx, code, machineID)
	e.getMetrics().recordDeactivate(status)
	if status != StatusValid {
		e.dbg.logger.Warn("deactivate failed", slog.String("status", status.label()))
		return status
	}

	e.mu.Lock()
	e.activated = false
	e.info = Info{}
	e.mu.Unlock()

	if err := e.store.Clear(); err != nil {
		e.dbg.logger.Warn("failed to clear activation state",
			slog.String("error", err.Error()),
		)
	}

	e.dbg.logger.Info("deactivated")
	return StatusValid
}

// Validate re-confirms the cached activation with the server. Only the
// IsValid flag is updated - a revocation is recorded without discarding
// the rest of the record, so the audit trail survives. Network and
// server errors leave the flag untouched.
func (e *Engine) Validate(ctx context.Context) Status {
	if !e.IsConfigured() {
		return StatusNotConfigured
	}

	e.mu.Lock()
	if !e.activated || e.info.ActivationCode == "" {
		e.mu.Unlock()
		return StatusNotActivated
	}
	code := e.info.ActivationCode
	machineID := e.info.MachineID
	e.mu.Unlock()

	status := e.transport.Validate(ctx, code, machineID)
	e.getMetrics().recordValidate(status)

	switch status {
	case StatusValid:
		e.setValid(true)
	case StatusInvalid, StatusRevoked:
		e.setValid(false)
		e.dbg.logger.Warn("activation invalidated by server",
			slog.String("status", status.label()),
		)
	}
	return status
}

// StatusCallback receives the outcome of an async operation. It may be
// invoked on a different goroutine than the caller's.
type StatusCallback func(Status)

// ActivateAsync runs Activate on the engine's bounded executor and
// delivers the status via cb. Overlapping async calls have no ordering
// guarantee.
func (e *Engine) ActivateAsync(code string, cb StatusCallback) {
	e.runAsync(func(ctx context.Context) Status {
		return e.Activate(ctx, code)
	}, cb)
}

// ValidateAsync runs Validate on the engine's bounded executor.
func (e *Engine) ValidateAsync(cb StatusCallback) {
	e.runAsync(e.Validate, cb)
}

func (e *Engine) runAsync(op func(context.Context) Status, cb StatusCallback) {
	if !e.IsConfigured() {
		if cb != nil {
			cb(StatusNotConfigured)
		}
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.sem.Acquire(context.Background(), 1); err != nil {
			if cb != nil {
				cb(StatusServerError)
			}
			return
		}
		defer e.sem.Release(1)

		status := op(context.Background())
		if cb != nil {
			cb(status)
		}
	}()
}

// revalidateLoop re-confirms activation on the configured interval.
// Failures are intentionally silent; they surface only through
// IsActivated.
func (e *Engine) revalidateLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.RevalidateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			if info, ok := e.ActivationInfo(); ok && info.IsValid && info.ActivationCode != "" {
				e.Validate(context.Background())
			}
		}
	}
}

func (e *Engine) setValid(valid bool) {
	e.mu.Lock()
	e.info.IsValid = valid
	e.mu.Unlock()
}

func (e *Engine) getMetrics() *Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// currentMachineID indirects fingerprint generation so the store's
// full-verify check and the engine always agree on the source.
func (e *Engine) currentMachineID() string {
	if e.machineID == nil {
		return machineid.Generate()
	}
	return e.machineID()
}
