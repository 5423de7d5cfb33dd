package updater

// Reporter publishes lifecycle events. Report is called synchronously on the
// engine goroutine, so implementations must not block for long and must not
// call Engine.Stop.
type Reporter interface {
	Report(Event)
}

// ChanReporter writes events to a channel.
type ChanReporter struct {
	ch chan<- Event
}

func NewChanReporter(ch chan<- Event) *ChanReporter { return &ChanReporter{ch: ch} }

func (r *ChanReporter) Report(e Event) {
	if r == nil {
		return
	}
	r.ch <- e
}

// MultiReporter fans an event out to several reporters in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(e Event) {
	for _, r := range m {
		if r != nil {
			r.Report(e)
		}
	}
}

// Callbacks is the host-facing observer: at most one handler per lifecycle
// event. A nil handler is skipped.
type Callbacks struct {
	OnVersionCheckStarted func()
	OnUpdateStarted       func()
	OnProgress            func(written, total int64)
	OnUpdateComplete      func()
	OnUpdateError         func(msg string)
}

func (c *Callbacks) Report(e Event) {
	if c == nil {
		return
	}
	switch e.Type {
	case EventCheckStarted:
		if c.OnVersionCheckStarted != nil {
			c.OnVersionCheckStarted()
		}
	case EventUpdateStarted:
		if c.OnUpdateStarted != nil {
			c.OnUpdateStarted()
		}
	case EventProgress:
		if c.OnProgress != nil && e.Progress != nil {
			c.OnProgress(e.Progress.Written, e.Progress.Total)
		}
	case EventUpdateComplete:
		if c.OnUpdateComplete != nil {
			c.OnUpdateComplete()
		}
	case EventUpdateError:
		if c.OnUpdateError != nil {
			c.OnUpdateError(e.Err)
		}
	}
}
