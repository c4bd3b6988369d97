package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/baskills/meetingvoice/internal/ttypes"
)

// DefaultDelimiter separates speaker turns inside one response.
const DefaultDelimiter = "[NEXT_SPEAKER]"

// MessageParser splits raw responses into per-speaker utterances. It holds no
// mutable state and is safe for concurrent use.
type MessageParser struct {
	delimiter string
	now       func() time.Time
}

// Option configures a MessageParser.
type Option func(*MessageParser)

// WithDelimiter overrides the token separating speaker turns.
func WithDelimiter(delim string) Option {
	return func(p *MessageParser) {
		if delim != "" {
			p.delimiter = delim
		}
	}
}

// WithClock sets the clock used for responses without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(p *MessageParser) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a parser with the default delimiter.
func New(opts ...Option) *MessageParser {
	p := &MessageParser{
		delimiter: DefaultDelimiter,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Delimiter returns the configured turn delimiter.
func (p *MessageParser) Delimiter() string {
	return p.delimiter
}

// SplitResponse converts one response into zero or more utterances, in the
// order their segments appear in the content. Utterance content is the text
// after the speaker's colon, trimmed but otherwise untouched. Segments with
// a name but no text are skipped silently. Segments that cannot be parsed
// or whose speaker is unknown are dropped and reported as diagnostics; they
// never prevent the remaining segments from being returned.
func (p *MessageParser) SplitResponse(resp ttypes.Response, participants []ttypes.Participant) ([]ttypes.Utterance, []Diagnostic) {
	if err := resp.Validate(); err != nil {
		return nil, []Diagnostic{{
			Kind:    KindMalformed,
			Segment: -1,
			Text:    truncate(resp.Content),
			Err:     err,
		}}
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return nil, nil
	}

	createdAt := resp.Timestamp
	if createdAt.IsZero() {
		createdAt = p.now()
	}

	if !strings.Contains(content, p.delimiter) {
		return p.single(resp, content, createdAt, participants)
	}

	var (
		out   []ttypes.Utterance
		diags []Diagnostic
	)
	for i, seg := range p.segments(content) {
		name, text, ok := splitSpeakerLine(seg)
		if !ok {
			diags = append(diags, Diagnostic{
				Kind:       KindUnparseable,
				ResponseID: resp.ID,
				Segment:    i,
				Text:       truncate(seg),
			})
			continue
		}
		if text == "" {
			continue
		}

		participant, found := findByName(participants, name)
		if !found {
			diags = append(diags, Diagnostic{
				Kind:       KindUnknownSpeaker,
				ResponseID: resp.ID,
				Segment:    i,
				Speaker:    name,
				Text:       truncate(text),
				Suggestion: suggest(name, participants),
			})
			continue
		}

		out = append(out, ttypes.Utterance{
			ID:               fmt.Sprintf("%s-segment-%d", resp.ID, i),
			Content:          text,
			SpeakerID:        participant.ID,
			SpeakerName:      participant.Name,
			SpeakerRole:      participant.Role,
			CreatedAt:        createdAt,
			FromMultiSpeaker: true,
			OriginalID:       resp.ID,
		})
	}

	return out, diags
}

// single handles a response without any delimiter. The claimed speaker id is
// authoritative; the speaker name is only consulted when the id is unknown.
func (p *MessageParser) single(resp ttypes.Response, content string, createdAt time.Time, participants []ttypes.Participant) ([]ttypes.Utterance, []Diagnostic) {
	participant, found := findByID(participants, resp.Speaker)
	if !found && resp.SpeakerName != "" {
		participant, found = findByName(participants, resp.SpeakerName)
	}
	if !found {
		claimed := resp.SpeakerName
		if claimed == "" {
			claimed = resp.Speaker
		}
		return nil, []Diagnostic{{
			Kind:       KindUnknownSpeaker,
			ResponseID: resp.ID,
			Segment:    -1,
			Speaker:    claimed,
			Text:       truncate(content),
			Suggestion: suggest(claimed, participants),
		}}
	}

	return []ttypes.Utterance{{
		ID:          resp.ID,
		Content:     content,
		SpeakerID:   participant.ID,
		SpeakerName: participant.Name,
		SpeakerRole: participant.Role,
		CreatedAt:   createdAt,
	}}, nil
}

// segments splits content on the delimiter and drops blank pieces. The index
// of a returned segment is its position among the non-blank pieces.
func (p *MessageParser) segments(content string) []string {
	parts := strings.Split(content, p.delimiter)
	out := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// splitSpeakerLine matches "Name: text". The name is everything before the
// first colon; markdown emphasis around it is ignored. ok is true with an
// empty text when only the name is present.
func splitSpeakerLine(seg string) (name, text string, ok bool) {
	idx := strings.IndexByte(seg, ':')
	if idx <= 0 {
		return "", "", false
	}

	rawName := seg[:idx]
	name = strings.TrimSpace(strings.Trim(strings.TrimSpace(rawName), "*_"))
	text = seg[idx+1:]

	// "**Sarah:** hello" leaves the closing emphasis on the text side.
	if strings.HasPrefix(strings.TrimSpace(rawName), "*") || strings.HasPrefix(strings.TrimSpace(rawName), "_") {
		text = strings.TrimLeft(text, "*_")
	}
	text = strings.TrimSpace(text)

	if name == "" || strings.ContainsAny(name, "\n") {
		return "", "", false
	}
	return name, text, true
}

func findByName(participants []ttypes.Participant, name string) (ttypes.Participant, bool) {
	name = strings.TrimSpace(name)
	for _, p := range participants {
		if strings.EqualFold(strings.TrimSpace(p.Name), name) {
			return p, true
		}
	}
	return ttypes.Participant{}, false
}

func findByID(participants []ttypes.Participant, id string) (ttypes.Participant, bool) {
	if id == "" {
		return ttypes.Participant{}, false
	}
	for _, p := range participants {
		if p.ID == id {
			return p, true
		}
	}
	return ttypes.Participant{}, false
}

const maxDiagnosticText = 60

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxDiagnosticText {
		return s
	}
	return string(r[:maxDiagnosticText]) + "…"
}
