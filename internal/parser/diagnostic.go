package parser

import (
	"fmt"
	"strings"

	"github.com/baskills/meetingvoice/internal/ttypes"
	"github.com/sahilm/fuzzy"
)

// Kind classifies why a segment was dropped.
type Kind string

const (
	// KindMalformed marks a response record missing required fields.
	KindMalformed Kind = "malformed-response"

	// KindUnparseable marks a segment not shaped like "Name: text".
	KindUnparseable Kind = "unparseable-segment"

	// KindUnknownSpeaker marks a speaker that matches no participant.
	KindUnknownSpeaker Kind = "unknown-speaker"
)

// Diagnostic describes one dropped segment. Segment is -1 for responses
// without a delimiter.
type Diagnostic struct {
	Kind       Kind
	ResponseID string
	Segment    int
	Speaker    string
	Text       string
	Suggestion string
	Err        error
}

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(string(d.Kind))
	if d.ResponseID != "" {
		fmt.Fprintf(&b, " response=%s", d.ResponseID)
	}
	if d.Segment >= 0 {
		fmt.Fprintf(&b, " segment=%d", d.Segment)
	}
	if d.Speaker != "" {
		fmt.Fprintf(&b, " speaker=%q", d.Speaker)
	}
	if d.Suggestion != "" {
		fmt.Fprintf(&b, " (did you mean %q?)", d.Suggestion)
	}
	if d.Err != nil {
		fmt.Fprintf(&b, ": %v", d.Err)
	}
	return b.String()
}

// Keyvals flattens the diagnostic for structured loggers.
func (d Diagnostic) Keyvals() []interface{} {
	kv := []interface{}{"kind", string(d.Kind), "response", d.ResponseID}
	if d.Segment >= 0 {
		kv = append(kv, "segment", d.Segment)
	}
	if d.Speaker != "" {
		kv = append(kv, "speaker", d.Speaker)
	}
	if d.Suggestion != "" {
		kv = append(kv, "suggestion", d.Suggestion)
	}
	if d.Text != "" {
		kv = append(kv, "text", d.Text)
	}
	if d.Err != nil {
		kv = append(kv, "err", d.Err)
	}
	return kv
}

// suggest returns the participant name closest to an unknown speaker, or ""
// when nothing is close. Both directions are tried so that a dropped letter
// ("Sara") and an extra one ("Bolla") both find "Sarah" and "Bola".
func suggest(name string, participants []ttypes.Participant) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || len(participants) == 0 {
		return ""
	}

	names := make([]string, len(participants))
	for i, p := range participants {
		names[i] = strings.ToLower(p.Name)
	}

	if matches := fuzzy.Find(name, names); len(matches) > 0 {
		return participants[matches[0].Index].Name
	}

	best, bestScore := "", 0
	for i, candidate := range names {
		if candidate == "" {
			continue
		}
		matches := fuzzy.Find(candidate, []string{name})
		if len(matches) > 0 && (best == "" || matches[0].Score > bestScore) {
			best, bestScore = participants[i].Name, matches[0].Score
		}
	}
	return best
}
