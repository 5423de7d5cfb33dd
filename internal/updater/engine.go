// Package updater runs the update loop: wait, check the published version,
// download and commit a new image, restart.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinoosan/fota/internal/data"
	"github.com/tinoosan/fota/internal/fetch"
	"github.com/tinoosan/fota/internal/metrics"
	"github.com/tinoosan/fota/internal/rollout"
	"github.com/tinoosan/fota/internal/schedule"
	"github.com/tinoosan/fota/internal/transfer"
	"github.com/tinoosan/fota/internal/updatecfg"
	"github.com/tinoosan/fota/internal/version"
)

// Connectivity reports whether the network link is up. It is polled.
type Connectivity interface {
	Connected() bool
}

// Restarter reboots the device into the freshly committed image. A
// successful call is not expected to return.
type Restarter interface {
	Restart(ctx context.Context) error
}

// Options wires an Engine. Link, Restarter, Fetcher, Clock, Reporter and
// Logger are optional. The engine owns the delay bounds of Clock: Begin
// resets them from Config.
type Options struct {
	Config    updatecfg.Config
	Identity  []byte
	Link      Connectivity
	Sink      transfer.Sink
	Restarter Restarter
	Fetcher   *fetch.Client
	Clock     *schedule.Clock
	Reporter  Reporter
	Logger    *slog.Logger
}

type outcome int

const (
	outcomeUpToDate outcome = iota
	outcomeDeferred
	outcomeFailed
	outcomeRestart
	outcomeCancelled
)

type wake int

const (
	wakeTimer wake = iota
	wakeForced
	wakeStopped
)

// Engine is the update coordinator. One Engine runs at most one loop, and
// the loop performs at most one version check or transfer at a time.
type Engine struct {
	identity  []byte
	link      Connectivity
	sink      transfer.Sink
	restarter Restarter
	client    *fetch.Client
	clock     *schedule.Clock
	log       *slog.Logger

	force chan struct{}

	mu        sync.Mutex
	cfg       updatecfg.Config
	reporter  Reporter
	running   bool
	phase     data.Phase
	lastCheck time.Time
	lastErr   string
	retries   int
	cancel    context.CancelFunc
	done      chan struct{}
}

// New returns an idle Engine.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	client := opts.Fetcher
	if client == nil {
		client = fetch.NewClient(fetch.DefaultOptions())
	}
	cfg := opts.Config.Normalize()
	clock := opts.Clock
	if clock == nil {
		clock = schedule.New(cfg.MinDelay, cfg.MaxDelay)
	}
	done := make(chan struct{})
	close(done)
	return &Engine{
		identity:  append([]byte(nil), opts.Identity...),
		link:      opts.Link,
		sink:      opts.Sink,
		restarter: opts.Restarter,
		client:    client,
		clock:     clock,
		log:       log.With("component", "updater"),
		force:     make(chan struct{}, 1),
		cfg:       cfg,
		reporter:  opts.Reporter,
		phase:     data.PhaseIdle,
		done:      done,
	}
}

// Configure replaces the update policy. It fails with ErrAlreadyRunning
// while the loop runs.
func (e *Engine) Configure(cfg updatecfg.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return data.ErrAlreadyRunning
	}
	e.cfg = cfg.Normalize()
	return nil
}

// Config returns a copy of the active policy.
func (e *Engine) Config() updatecfg.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetReporter replaces the event observer. A nil reporter drops events.
func (e *Engine) SetReporter(r Reporter) {
	e.mu.Lock()
	e.reporter = r
	e.mu.Unlock()
}

// Begin validates the policy and the link, then starts the loop in its own
// goroutine. The loop stops when ctx is cancelled or Stop is called.
func (e *Engine) Begin(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return data.ErrAlreadyRunning
	}
	cfg := e.cfg
	err := cfg.Validate()
	if err == nil && e.link != nil && !e.link.Connected() {
		err = fmt.Errorf("%w: cannot start updater", data.ErrNotConnected)
	}
	if err == nil && e.sink == nil {
		err = fmt.Errorf("%w: no flash sink", data.ErrConfigInvalid)
	}
	if err != nil {
		e.lastErr = err.Error()
		e.mu.Unlock()
		e.log.Error("begin", "err", err)
		e.emit(Event{Type: EventUpdateError, Current: cfg.CurrentVersion, Err: err.Error()})
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.phase = data.PhaseWaiting
	e.lastCheck = time.Time{}
	e.lastErr = ""
	e.retries = 0
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()
	metrics.RetryCount.Set(0)

	e.clock.SetBounds(cfg.MinDelay, cfg.MaxDelay)
	checker := version.NewChecker(e.client, cfg.MaxVersionSize)
	xfer := transfer.New(e.log, e.client, cfg.ChunkSize, cfg.ProgressBlock)

	e.log.Info("updater started",
		"current", cfg.CurrentVersion,
		"interval", cfg.CheckInterval,
		"staggered", cfg.StaggeredRollout,
		"percentage", cfg.RolloutPercentage)
	go func() {
		defer close(done)
		e.run(runCtx, cfg, checker, xfer)
	}()
	return nil
}

// Stop cancels the loop, abandoning any transfer in progress, waits for it
// to exit and resets the engine state. It must not be called from a Reporter.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-done

	e.mu.Lock()
	defer e.mu.Unlock()
	// A Begin that won the race after the loop exited owns the state now.
	if e.done != done {
		return
	}
	e.running = false
	e.phase = data.PhaseIdle
	e.lastCheck = time.Time{}
	e.lastErr = ""
	e.retries = 0
	e.cancel = nil
	metrics.RetryCount.Set(0)
	select {
	case <-e.force:
	default:
	}
}

// ForceCheck makes the loop check immediately when it next waits in
// Waiting or Sleeping. Repeated calls before that collapse into one.
func (e *Engine) ForceCheck() {
	select {
	case e.force <- struct{}{}:
	default:
	}
}

// Done is closed when the current loop exits.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) CurrentVersion() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.CurrentVersion
}

// LastCheckTime is the start of the most recent version check, or the zero
// time before the first one.
func (e *Engine) LastCheckTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastCheck
}

func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) Phase() data.Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) Retries() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retries
}

// Status returns a snapshot for the control API.
func (e *Engine) Status() data.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return data.Status{
		Running:        e.running,
		Phase:          e.phase,
		CurrentVersion: e.cfg.CurrentVersion,
		LastCheck:      e.lastCheck,
		LastError:      e.lastErr,
		Retries:        e.retries,
		ForcePending:   len(e.force) > 0,
		Staggered:      e.cfg.StaggeredRollout,
		RolloutBucket:  rollout.Bucket(e.identity),
		RolloutPercent: e.cfg.RolloutPercentage,
	}
}

func (e *Engine) run(ctx context.Context, cfg updatecfg.Config, checker *version.Checker, xfer *transfer.Transfer) {
	defer func() {
		e.mu.Lock()
		e.running = false
		if e.phase != data.PhaseRestarting {
			e.phase = data.PhaseIdle
		}
		e.mu.Unlock()
		e.log.Info("updater stopped")
	}()

	e.setPhase(data.PhaseWaiting)
	delay := e.clock.InitialDelay()
	e.log.Debug("initial delay", "delay", delay)
	w := e.sleep(ctx, delay, true)
	if w == wakeStopped {
		return
	}

	forced := w == wakeForced
	var wait time.Duration
	for {
		if e.link != nil && !e.link.Connected() {
			e.setPhase(data.PhaseSleeping)
			e.log.Warn("network not connected, skipping check", "backoff", cfg.OfflineBackoff)
			if e.sleep(ctx, cfg.OfflineBackoff, false) == wakeStopped {
				return
			}
			continue
		}
		last := e.LastCheckTime()
		if !e.clock.DueNow(last, wait, forced) {
			e.setPhase(data.PhaseSleeping)
			w := e.sleep(ctx, e.clock.Remaining(last, wait), true)
			if w == wakeStopped {
				return
			}
			forced = w == wakeForced
			continue
		}
		forced = false

		switch e.poll(ctx, cfg, checker, xfer) {
		case outcomeCancelled:
			return
		case outcomeRestart:
			e.restart(ctx)
			return
		}

		wait = e.clock.NextInterval(cfg.CheckInterval)
		e.setPhase(data.PhaseSleeping)
		e.log.Debug("next check", "in", wait)
		w := e.sleep(ctx, e.clock.Remaining(e.LastCheckTime(), wait), true)
		if w == wakeStopped {
			return
		}
		forced = w == wakeForced
	}
}

// poll runs one cycle: version check, rollout gate and, when an update is
// due, the transfer.
func (e *Engine) poll(ctx context.Context, cfg updatecfg.Config, checker *version.Checker, xfer *transfer.Transfer) outcome {
	cycle := uuid.NewString()
	log := e.log.With("cycle", cycle)
	base := Event{Cycle: cycle, Current: cfg.CurrentVersion}

	e.mu.Lock()
	e.phase = data.PhasePolling
	e.lastCheck = e.clock.Now()
	e.mu.Unlock()
	e.emit(base.with(EventCheckStarted))

	res, err := checker.Check(ctx, cfg.VersionURL, cfg.CurrentVersion)
	if err != nil {
		if ctx.Err() != nil {
			return outcomeCancelled
		}
		metrics.VersionChecks.WithLabelValues("error").Inc()
		log.Error("version check", "url", cfg.VersionURL, "err", err)
		e.fail(cfg, err)
		ev := base.with(EventUpdateError)
		ev.Err = err.Error()
		e.emit(ev)
		fin := base.with(EventCheckFinished)
		fin.Outcome = data.OutcomeFailed
		fin.Err = err.Error()
		e.emit(fin)
		return outcomeFailed
	}
	base.Remote = res.Remote

	if !res.UpdateAvailable {
		metrics.VersionChecks.WithLabelValues("up_to_date").Inc()
		log.Info("firmware up to date", "version", res.Current)
		e.succeed()
		fin := base.with(EventCheckFinished)
		fin.Outcome = data.OutcomeUpToDate
		e.emit(fin)
		return outcomeUpToDate
	}

	if cfg.StaggeredRollout && !rollout.Decide(e.identity, cfg.RolloutPercentage) {
		metrics.VersionChecks.WithLabelValues("deferred").Inc()
		log.Info("update deferred by staggered rollout",
			"remote", res.Remote,
			"bucket", rollout.Bucket(e.identity),
			"percentage", cfg.RolloutPercentage)
		fin := base.with(EventCheckFinished)
		fin.Outcome = data.OutcomeDeferred
		e.emit(fin)
		return outcomeDeferred
	}

	metrics.VersionChecks.WithLabelValues("update_available").Inc()
	log.Info("update available", "current", res.Current, "remote", res.Remote)
	e.setPhase(data.PhaseUpdating)
	e.emit(base.with(EventUpdateStarted))

	p, err := xfer.Run(ctx, transfer.Request{URL: cfg.FirmwareURL}, e.sink, func(written, total int64) {
		ev := base.with(EventProgress)
		ev.Progress = &data.Progress{Written: written, Total: total}
		e.emit(ev)
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("transfer abandoned", "written", p.Written, "total", p.Total)
			return outcomeCancelled
		}
		log.Error("transfer", "url", cfg.FirmwareURL, "written", p.Written, "total", p.Total, "err", err)
		e.fail(cfg, err)
		ev := base.with(EventUpdateError)
		ev.Err = err.Error()
		ev.Progress = &p
		e.emit(ev)
		return outcomeFailed
	}

	log.Info("update installed", "remote", res.Remote, "bytes", p.Written)
	e.succeed()
	ev := base.with(EventUpdateComplete)
	ev.Progress = &p
	e.emit(ev)
	e.setPhase(data.PhaseRestarting)
	return outcomeRestart
}

func (e *Engine) restart(ctx context.Context) {
	if e.restarter == nil {
		e.log.Warn("no restarter configured, loop exits without reboot")
		return
	}
	e.log.Info("restarting into new firmware")
	if err := e.restarter.Restart(ctx); err != nil && !errors.Is(err, context.Canceled) {
		e.log.Error("restart", "err", err)
		e.mu.Lock()
		e.lastErr = err.Error()
		e.mu.Unlock()
	}
}

// sleep blocks for d. When wakeOnForce is set a pending force check cuts the
// wait short and is consumed.
func (e *Engine) sleep(ctx context.Context, d time.Duration, wakeOnForce bool) wake {
	var force <-chan struct{}
	if wakeOnForce {
		force = e.force
	}
	if d <= 0 {
		select {
		case <-ctx.Done():
			return wakeStopped
		case <-force:
			return wakeForced
		default:
			return wakeTimer
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return wakeStopped
	case <-force:
		e.log.Info("forced check")
		return wakeForced
	case <-t.C:
		return wakeTimer
	}
}

func (e *Engine) fail(cfg updatecfg.Config, err error) {
	e.mu.Lock()
	e.lastErr = err.Error()
	e.retries++
	if cfg.MaxRetries > 0 && e.retries >= cfg.MaxRetries {
		e.log.Warn("max retries reached, resetting counter", "max", cfg.MaxRetries)
		e.retries = 0
	}
	n := e.retries
	e.mu.Unlock()
	metrics.RetryCount.Set(float64(n))
}

func (e *Engine) succeed() {
	e.mu.Lock()
	e.retries = 0
	e.mu.Unlock()
	metrics.RetryCount.Set(0)
}

func (e *Engine) setPhase(p data.Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
}

func (e *Engine) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = e.clock.Now()
	}
	e.mu.Lock()
	r := e.reporter
	e.mu.Unlock()
	if r != nil {
		r.Report(ev)
	}
}

func (ev Event) with(t EventType) Event {
	ev.Type = t
	return ev
}
