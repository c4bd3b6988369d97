package transcript

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/baskills/meetingvoice/internal/ttypes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history", "transcripts.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func turn(id, speakerID, name, role, text string) ttypes.Utterance {
	return ttypes.Utterance{
		ID:          id,
		Content:     text,
		SpeakerID:   speakerID,
		SpeakerName: name,
		SpeakerRole: role,
		CreatedAt:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestRecordAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	turns := []ttypes.Utterance{
		turn("r1-segment-0", "1", "Sarah", "Product Owner", "Good morning everyone."),
		turn("r1-segment-1", "2", "Bola", "Developer", "Thank you Sarah, first story is..."),
		turn("r2", "1", "Sarah", "Product Owner", "Let's size it."),
	}
	turns[0].FromMultiSpeaker, turns[0].OriginalID = true, "r1"

	for _, u := range turns {
		if err := s.Record(ctx, "sess-a", u); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if err := s.Record(ctx, "sess-b", turns[2]); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := s.List(ctx, "sess-a")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Seq != i || e.Utterance.ID != turns[i].ID {
			t.Errorf("entry %d = seq %d id %s", i, e.Seq, e.Utterance.ID)
		}
	}
	first := entries[0].Utterance
	if !first.FromMultiSpeaker || first.OriginalID != "r1" || first.SpeakerRole != "Product Owner" {
		t.Errorf("fields not round-tripped: %+v", first)
	}
	if !first.CreatedAt.Equal(turns[0].CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", first.CreatedAt, turns[0].CreatedAt)
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	counts := map[string]int{}
	for _, ss := range sessions {
		counts[ss.ID] = ss.Utterances
	}
	if counts["sess-a"] != 3 || counts["sess-b"] != 1 {
		t.Errorf("Unexpected session counts %v", counts)
	}
}

func TestLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"abc123", "abd456", "xyz"} {
		if err := s.Begin(ctx, id, ""); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
	}

	tests := []struct {
		prefix  string
		want    string
		wantErr error
	}{
		{"abc", "abc123", nil},
		{"xyz", "xyz", nil},
		{"ab", "", ErrAmbiguous},
		{"nope", "", ErrNotFound},
	}
	for _, tt := range tests {
		ss, err := s.Lookup(ctx, tt.prefix)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Lookup(%q) error = %v, want %v", tt.prefix, err, tt.wantErr)
			}
			continue
		}
		if err != nil || ss.ID != tt.want {
			t.Errorf("Lookup(%q) = %q, %v", tt.prefix, ss.ID, err)
		}
	}
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.clock = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	s.Record(ctx, "old", turn("1", "1", "Sarah", "", "stale"))
	s.clock = time.Now
	s.Record(ctx, "new", turn("1", "1", "Sarah", "", "fresh"))

	n, err := s.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 pruned session, got %d", n)
	}
	if entries, _ := s.List(ctx, "old"); len(entries) != 0 {
		t.Errorf("utterances of pruned session survived: %d", len(entries))
	}
	if _, err := s.Lookup(ctx, "new"); err != nil {
		t.Errorf("recent session pruned: %v", err)
	}
}

func TestMarkdown(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Begin(ctx, "0123456789", "Sprint planning")
	s.Record(ctx, "0123456789", turn("a", "1", "Sarah", "Product Owner", "Good morning everyone."))
	s.Record(ctx, "0123456789", turn("b", "1", "Sarah", "Product Owner", "Shall we start?"))
	s.Record(ctx, "0123456789", turn("c", "2", "Bola", "", "Sure."))

	md, err := s.Markdown(ctx, "01234")
	if err != nil {
		t.Fatalf("Markdown failed: %v", err)
	}

	for _, want := range []string{
		"# Sprint planning",
		"3 utterances",
		"**Sarah** (Product Owner)\n\n> Good morning everyone.\n\n> Shall we start?",
		"**Bola**\n\n> Sure.",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Count(md, "**Sarah**") != 1 {
		t.Error("consecutive turns should share one heading")
	}
}

func TestOpenInMemory(t *testing.T) {
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if err := s.Record(context.Background(), "m", turn("1", "1", "Sarah", "", "hi")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if entries, _ := s.List(context.Background(), "m"); len(entries) != 1 {
		t.Errorf("Expected 1 entry, got %d", len(entries))
	}
}
