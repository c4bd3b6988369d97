package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/baskills/meetingvoice/internal/cache"
	"github.com/baskills/meetingvoice/internal/config"
	"github.com/baskills/meetingvoice/internal/script"
	"github.com/baskills/meetingvoice/internal/transcript"
	"github.com/baskills/meetingvoice/internal/ttypes"
	"github.com/spf13/viper"
)

const standup = `title: Stand-up
participants:
  - {id: "1", name: Sarah, role: Product Owner}
  - {id: "2", name: Bola, role: Developer}
responses:
  - id: r1
    content: "Sarah: Morning. [NEXT_SPEAKER] Bola: Morning Sarah."
  - id: r2
    speaker: "2"
    content: "I finished the login page."
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.Set("engine", "mock")
	v.Set("silent", true)
	v.Set("mock.per_word", "5ms")
	v.Set("mock.latency", "0s")
	v.Set("cache.disk_mb", 0)
	v.Set("playback.poll_interval", "10ms")
	v.Set("transcript.path", filepath.Join(t.TempDir(), "history.db"))
	v.Set("bus.embedded", true)
	v.Set("bus.embedded_port", -1)

	c, err := config.Load(v)
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}
	return c
}

func TestPipeline_PlaysScript(t *testing.T) {
	c := testConfig(t)
	s, err := script.Parse([]byte(standup))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := newPipeline(ctx, c, s, "standup-1")
	if err != nil {
		t.Fatalf("newPipeline failed: %v", err)
	}

	var out bytes.Buffer
	printer := newPlainPrinter(&out, s.Participants, 0)
	p.session.Subscribe(printer.print)

	if err := feed(ctx, p.session, s.Responses); err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	p.Close()

	want := "Sarah │ Morning.\n Bola │ Morning Sarah.\n Bola │ I finished the login page.\n"
	if out.String() != want {
		t.Errorf("Expected output:\n%s\ngot:\n%s", want, out.String())
	}

	store, err := transcript.Open(ctx, c.Transcript.Path)
	if err != nil {
		t.Fatalf("transcript.Open failed: %v", err)
	}
	defer store.Close()
	entries, err := store.List(ctx, "standup-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 || entries[0].Utterance.ID != "r1-segment-0" || entries[2].Utterance.ID != "r2" {
		t.Errorf("Unexpected transcript %+v", entries)
	}
	sessions, _ := store.Sessions(ctx)
	if len(sessions) != 1 || sessions[0].Title != "Stand-up" {
		t.Errorf("Unexpected sessions %+v", sessions)
	}
}

func TestPlainPrinter_Wraps(t *testing.T) {
	var out bytes.Buffer
	p := newPlainPrinter(&out, []ttypes.Participant{{Name: "Al"}, {Name: "Chidinma"}}, 30)
	p.print(ttypes.Utterance{SpeakerName: "Al", Content: "one two three four five six seven"})

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) < 2 {
		t.Fatalf("Expected wrapped output, got %q", out.String())
	}
	if !strings.HasPrefix(lines[0], "      Al │ one") {
		t.Errorf("Unexpected first line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "         │ ") {
		t.Errorf("Unexpected continuation line %q", lines[1])
	}
}

func TestPrintSessions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	err := printSessions(&out, []transcript.Session{
		{ID: "3f2a9c1e-0000-4000-8000-000000000000", Title: "Sprint planning", StartedAt: now.Add(-2 * time.Hour), Utterances: 12},
	}, now)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"3f2a9c1e", "2 hours ago", "12", "Sprint planning"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected %q in:\n%s", want, out.String())
		}
	}

	out.Reset()
	_ = printSessions(&out, nil, now)
	if !strings.Contains(out.String(), "No meetings") {
		t.Errorf("Unexpected empty listing %q", out.String())
	}
}

func TestPrintCacheStats(t *testing.T) {
	var out bytes.Buffer
	err := printCacheStats(&out, []cache.Stats{
		{Level: cache.LevelMemory, Capacity: 64 << 20, Size: 3 << 20, Items: 7, Hits: 3, Misses: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"memory", "3.0 MiB", "64 MiB", "7", "75.0%"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected %q in:\n%s", want, out.String())
		}
	}
}
