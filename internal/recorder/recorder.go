// Package recorder turns updater lifecycle events into history records.
package recorder

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tinoosan/fota/internal/data"
	"github.com/tinoosan/fota/internal/history"
	"github.com/tinoosan/fota/internal/metrics"
	"github.com/tinoosan/fota/internal/updater"
)

// Recorder consumes updater events and writes one attempt per cycle.
type Recorder struct {
	repo   history.Repo
	events <-chan updater.Event
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(log *slog.Logger, repo history.Repo, events <-chan updater.Event) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{repo: repo, events: events, log: log, ctx: context.Background()}
}

// Run starts the recording loop. It returns when Stop is called or the
// event channel is closed.
func (r *Recorder) Run() {
	r.stop = make(chan struct{})
	r.ctx, r.cancel = context.WithCancel(r.ctx)
	r.log = r.log.With("component", "recorder", "operation_id", uuid.NewString())
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.stop:
				return
			case e, ok := <-r.events:
				if !ok {
					return
				}
				r.handle(e)
			}
		}
	}()
}

// Stop ends the loop and waits for it. Extra calls are no-ops.
func (r *Recorder) Stop() {
	if r.stop == nil {
		return
	}
	r.stopOnce.Do(func() {
		close(r.stop)
		if r.cancel != nil {
			r.cancel()
		}
	})
	r.wg.Wait()
}

func (r *Recorder) handle(e updater.Event) {
	metrics.UpdateEvents.WithLabelValues(strings.ToLower(string(e.Type))).Inc()
	if e.Cycle == "" {
		// Begin failures happen outside any cycle.
		if e.Type == updater.EventUpdateError {
			r.log.Warn("updater error outside a cycle", "err", e.Err)
		}
		return
	}

	switch e.Type {
	case updater.EventCheckStarted:
		_, err := r.repo.Add(r.ctx, &data.Attempt{
			ID:             e.Cycle,
			StartedAt:      e.At,
			CurrentVersion: e.Current,
			Outcome:        data.OutcomeChecking,
		})
		if err != nil {
			r.log.Error("add attempt", "cycle", e.Cycle, "err", err)
			return
		}
	case updater.EventUpdateStarted:
		r.update(e, func(a *data.Attempt) {
			a.RemoteVersion = e.Remote
			a.Outcome = data.OutcomeDownloading
		})
	case updater.EventProgress:
		if e.Progress == nil {
			return
		}
		r.log.Debug("progress event", "cycle", e.Cycle, "written", e.Progress.Written, "total", e.Progress.Total)
		r.update(e, func(a *data.Attempt) {
			a.BytesWritten, a.TotalBytes = e.Progress.Written, e.Progress.Total
		})
		return
	case updater.EventUpdateComplete:
		r.update(e, func(a *data.Attempt) {
			a.Outcome = data.OutcomeInstalled
			a.FinishedAt = &e.At
			if e.Progress != nil {
				a.BytesWritten, a.TotalBytes = e.Progress.Written, e.Progress.Total
			}
		})
	case updater.EventUpdateError:
		r.update(e, func(a *data.Attempt) {
			a.Outcome = data.OutcomeFailed
			a.Error = e.Err
			a.FinishedAt = &e.At
			if e.Remote != "" {
				a.RemoteVersion = e.Remote
			}
			if e.Progress != nil {
				a.BytesWritten, a.TotalBytes = e.Progress.Written, e.Progress.Total
			}
		})
	case updater.EventCheckFinished:
		r.update(e, func(a *data.Attempt) {
			if e.Outcome != "" {
				a.Outcome = e.Outcome
			}
			a.RemoteVersion = e.Remote
			if e.Err != "" {
				a.Error = e.Err
			}
			a.FinishedAt = &e.At
		})
	default:
		r.log.Warn("unknown event type", "cycle", e.Cycle, "type", e.Type)
		return
	}
	r.log.Info("recorded event", "cycle", e.Cycle, "type", e.Type)
}

func (r *Recorder) update(e updater.Event, mutate func(*data.Attempt)) {
	_, err := r.repo.Update(r.ctx, e.Cycle, func(a *data.Attempt) error {
		if a.Outcome.Terminal() && e.Type != updater.EventCheckFinished {
			return nil
		}
		mutate(a)
		return nil
	})
	if err != nil {
		r.log.Error("update attempt", "cycle", e.Cycle, "type", e.Type, "err", err)
	}
}
