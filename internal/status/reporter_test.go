package status

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testReporter(t *testing.T) *Reporter {
	t.Helper()
	return NewReporter(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLifecycle(t *testing.T) {
	r := testReporter(t)

	if r.IsUpdating() {
		t.Error("new reporter should be idle")
	}
	s := r.Snapshot()
	if s.StartedAt != nil || s.FinishedAt != nil {
		t.Error("expected no timestamps before first run")
	}

	r.Begin()
	if !r.IsUpdating() {
		t.Error("expected updating after Begin")
	}
	r.AddPage()
	r.AddArtist()
	r.AddAlbums(3)
	r.AddError("vol5/beefheart.html", errors.New("boom"))
	r.Finish()

	s = r.Snapshot()
	if s.Updating {
		t.Error("expected idle after Finish")
	}
	if s.Pages != 1 || s.Artists != 1 || s.Albums != 3 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if len(s.Errors) != 1 || s.Errors[0].Context != "vol5/beefheart.html" {
		t.Errorf("unexpected errors: %+v", s.Errors)
	}
	if s.StartedAt == nil || s.FinishedAt == nil {
		t.Fatal("expected both timestamps after a finished run")
	}
	if s.FinishedAt.Before(*s.StartedAt) {
		t.Error("finished before started")
	}
}

func TestBeginResetsCounters(t *testing.T) {
	r := testReporter(t)
	r.Begin()
	r.AddArtist()
	r.AddError("x", errors.New("y"))
	r.Finish()

	r.Begin()
	s := r.Snapshot()
	if s.Artists != 0 || len(s.Errors) != 0 {
		t.Errorf("Begin should reset counters: %+v", s)
	}
	if s.FinishedAt != nil {
		t.Error("Begin should clear the finish time")
	}
}

func TestSubscribeDeliversCurrentSnapshot(t *testing.T) {
	r := testReporter(t)
	r.Begin()
	r.AddArtist()

	id, ch := r.Subscribe()
	defer r.Unsubscribe(id)

	select {
	case s := <-ch:
		if s.Artists != 1 || !s.Updating {
			t.Errorf("unexpected initial snapshot: %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot delivered")
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	r := testReporter(t)
	id, ch := r.Subscribe()
	defer r.Unsubscribe(id)
	<-ch // initial snapshot

	r.AddPage()

	select {
	case s := <-ch:
		if s.Pages != 1 {
			t.Errorf("expected 1 page, got %d", s.Pages)
		}
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	r := testReporter(t)
	id, ch := r.Subscribe()
	<-ch
	r.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
	// Broadcasting after unsubscribe must not panic
	r.AddPage()
	// Double unsubscribe is a no-op
	r.Unsubscribe(id)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	r := testReporter(t)
	id, _ := r.Subscribe()
	defer r.Unsubscribe(id)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.AddPage()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
}

func TestErrorCap(t *testing.T) {
	r := testReporter(t)
	r.Begin()
	for i := 0; i < maxErrors+50; i++ {
		r.AddError("ctx", errors.New("e"))
	}
	if got := len(r.Snapshot().Errors); got != maxErrors {
		t.Errorf("expected %d errors, got %d", maxErrors, got)
	}
}
