package updater

import (
	"testing"

	"github.com/tinoosan/fota/internal/data"
)

func TestCallbacksNilHandlersAreNoops(t *testing.T) {
	var c Callbacks
	for _, typ := range []EventType{EventCheckStarted, EventUpdateStarted, EventProgress, EventUpdateComplete, EventUpdateError, EventCheckFinished} {
		c.Report(Event{Type: typ, Progress: &data.Progress{Written: 1, Total: 2}})
	}
	var nilCallbacks *Callbacks
	nilCallbacks.Report(Event{Type: EventUpdateError})
}

func TestCallbacksDispatch(t *testing.T) {
	var got []string
	c := &Callbacks{
		OnVersionCheckStarted: func() { got = append(got, "check") },
		OnProgress: func(w, total int64) {
			if w != 5 || total != 10 {
				t.Errorf("progress = %d/%d", w, total)
			}
			got = append(got, "progress")
		},
		OnUpdateError: func(msg string) { got = append(got, "error:"+msg) },
	}
	c.Report(Event{Type: EventCheckStarted})
	c.Report(Event{Type: EventProgress, Progress: &data.Progress{Written: 5, Total: 10}})
	c.Report(Event{Type: EventProgress})
	c.Report(Event{Type: EventUpdateStarted})
	c.Report(Event{Type: EventUpdateError, Err: "HTTP 404"})

	want := []string{"check", "progress", "error:HTTP 404"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestMultiAndChanReporter(t *testing.T) {
	ch := make(chan Event, 2)
	count := 0
	m := MultiReporter{nil, NewChanReporter(ch), &Callbacks{OnUpdateComplete: func() { count++ }}}
	m.Report(Event{Type: EventUpdateComplete, Cycle: "c1"})

	if count != 1 {
		t.Fatalf("callback count = %d", count)
	}
	select {
	case e := <-ch:
		if e.Type != EventUpdateComplete || e.Cycle != "c1" {
			t.Fatalf("event = %+v", e)
		}
	default:
		t.Fatal("channel reporter did not forward the event")
	}
}
