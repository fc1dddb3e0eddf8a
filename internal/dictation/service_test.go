package dictation

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/voxlabs-io/voxscribe/internal/bus"
	"github.com/voxlabs-io/voxscribe/internal/config"
	"github.com/voxlabs-io/voxscribe/internal/natsserver"
	"github.com/voxlabs-io/voxscribe/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() config.DictationConfig {
	return config.DictationConfig{
		Enabled:       true,
		MaxChars:      1000,
		TrailingPunct: ".,!?;:",
		IdleTimeoutMS: 60000,
	}
}

func TestApplyFragmentChainsSession(t *testing.T) {
	svc := NewService(context.Background(), testConfig(), nil, newLogger())
	t.Cleanup(svc.Close)

	steps := []struct {
		text         string
		wantText     string
		wantChanged  bool
		wantRevision int
	}{
		{"hello", "hello", true, 1},
		{"hello world", "hello world", true, 2},
		// Final hypothesis differing only in punctuation must not rewrite.
		{"hello world.", "hello world", false, 2},
		{"next utterance", "hello world\nnext utterance", true, 3},
		// Repeats of earlier lines append; frozen lines stay frozen.
		{"hello world", "hello world\nnext utterance\nhello world", true, 4},
	}

	for i, step := range steps {
		view, changed := svc.applyFragment("s1", step.text)
		if changed != step.wantChanged {
			t.Fatalf("step %d: changed = %v, want %v", i, changed, step.wantChanged)
		}
		if view.Text != step.wantText {
			t.Fatalf("step %d: text = %q, want %q", i, view.Text, step.wantText)
		}
		if view.Revision != step.wantRevision {
			t.Fatalf("step %d: revision = %d, want %d", i, view.Revision, step.wantRevision)
		}
	}
}

func TestApplyFragmentIsolatesSessions(t *testing.T) {
	svc := NewService(context.Background(), testConfig(), nil, newLogger())
	t.Cleanup(svc.Close)

	svc.applyFragment("a", "alpha transcript")
	svc.applyFragment("b", "bravo transcript")

	viewA, ok := svc.Snapshot("a")
	if !ok || viewA.Text != "alpha transcript" {
		t.Fatalf("unexpected view for session a: %+v", viewA)
	}
	viewB, ok := svc.Snapshot("b")
	if !ok || viewB.Text != "bravo transcript" {
		t.Fatalf("unexpected view for session b: %+v", viewB)
	}
}

func TestApplyFragmentTruncates(t *testing.T) {
	cfg := testConfig()
	cfg.MaxChars = 12
	svc := NewService(context.Background(), cfg, nil, newLogger())
	t.Cleanup(svc.Close)

	svc.applyFragment("s1", "one two three")
	view, _ := svc.Snapshot("s1")
	if !view.Truncated {
		t.Fatal("expected truncated view")
	}
	if len([]rune(view.Text)) != 12 {
		t.Fatalf("expected view clamped to 12 chars, got %q", view.Text)
	}
}

func TestSnapshotUnknownSession(t *testing.T) {
	svc := NewService(context.Background(), testConfig(), nil, newLogger())
	t.Cleanup(svc.Close)

	if _, ok := svc.Snapshot("missing"); ok {
		t.Fatal("expected no view for unknown session")
	}
}

func TestPruneIdleSessions(t *testing.T) {
	svc := NewService(context.Background(), testConfig(), nil, newLogger())
	t.Cleanup(svc.Close)

	start := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return start }
	svc.applyFragment("stale", "hello")
	svc.applyFragment("fresh", "hello")

	svc.clock = func() time.Time { return start.Add(2 * time.Minute) }
	svc.applyFragment("fresh", "hello world")

	svc.pruneIdle(svc.clock())

	if _, ok := svc.Snapshot("stale"); ok {
		t.Fatal("expected stale session pruned")
	}
	if _, ok := svc.Snapshot("fresh"); !ok {
		t.Fatal("expected fresh session kept")
	}
}

func TestServicePublishesViewsOverBus(t *testing.T) {
	log := newLogger()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, log)
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := bus.Connect(context.Background(), config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, log)
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	t.Cleanup(client.Close)

	svc := NewService(context.Background(), testConfig(), client, log)
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)

	views := make(chan protocol.TranscriptView, 8)
	sub, err := client.Conn().Subscribe(protocol.ViewSubject("s1"), func(msg *nats.Msg) {
		var view protocol.TranscriptView
		if err := json.Unmarshal(msg.Data, &view); err != nil {
			return
		}
		views <- view
	})
	if err != nil {
		t.Fatalf("subscribe views: %v", err)
	}
	t.Cleanup(func() { _ = sub.Drain() })

	publish := func(subject, text string) {
		t.Helper()
		data, err := json.Marshal(protocol.Transcript{
			SessionID: "s1",
			Text:      text,
			Partial:   subject == protocol.SubjectTranscriptPartial,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("marshal fragment: %v", err)
		}
		if err := client.Conn().Publish(subject, data); err != nil {
			t.Fatalf("publish fragment: %v", err)
		}
	}

	waitView := func(wantText string, wantRevision int) {
		t.Helper()
		select {
		case view := <-views:
			if view.Text != wantText || view.Revision != wantRevision {
				t.Fatalf("view = %+v, want text %q revision %d", view, wantText, wantRevision)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for view %q", wantText)
		}
	}

	// Each publish waits for its view so the two subscriptions cannot race.
	publish(protocol.SubjectTranscriptPartial, "hello")
	waitView("hello", 1)

	publish(protocol.SubjectTranscriptPartial, "hello world")
	waitView("hello world", 2)

	publish(protocol.SubjectTranscriptFinal, "hello world again")
	waitView("hello world again", 3)

	publish(protocol.SubjectTranscriptPartial, "and more")
	waitView("hello world again\nand more", 4)
}
