package transcript

import (
	"context"
	"fmt"
	"strings"
)

// Markdown renders a session's transcript. Consecutive turns by the same
// speaker are grouped under one name.
func (s *Store) Markdown(ctx context.Context, sessionID string) (string, error) {
	ss, err := s.Lookup(ctx, sessionID)
	if err != nil {
		return "", err
	}
	entries, err := s.List(ctx, ss.ID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	title := ss.Title
	if title == "" {
		title = "Meeting " + shortID(ss.ID)
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "_%s · %d utterances_\n\n", ss.StartedAt.Local().Format("Mon 2 Jan 2006 15:04"), len(entries))

	last := ""
	for _, e := range entries {
		u := e.Utterance
		if u.SpeakerID != last {
			if u.SpeakerRole != "" {
				fmt.Fprintf(&b, "**%s** (%s)\n\n", u.SpeakerName, u.SpeakerRole)
			} else {
				fmt.Fprintf(&b, "**%s**\n\n", u.SpeakerName)
			}
			last = u.SpeakerID
		}
		fmt.Fprintf(&b, "> %s\n\n", u.Content)
	}
	return b.String(), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
