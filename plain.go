package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/baskills/meetingvoice/internal/ttypes"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
)

// plainPrinter writes one aligned line per utterance for non-terminal
// output:
//
//	Sarah │ Good morning everyone.
//	 Bola │ Thank you Sarah.
type plainPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	name  int
	width int
}

func newPlainPrinter(w io.Writer, participants []ttypes.Participant, width int) *plainPrinter {
	p := &plainPrinter{w: w, width: width}
	for _, part := range participants {
		p.name = max(p.name, runewidth.StringWidth(part.Name))
	}
	return p
}

func (p *plainPrinter) print(u ttypes.Utterance) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := u.SpeakerName
	if w := runewidth.StringWidth(name); w > p.name {
		p.name = w
	}
	pad := strings.Repeat(" ", p.name-runewidth.StringWidth(name))
	prefix := pad + name + " │ "
	cont := strings.Repeat(" ", p.name) + " │ "

	text := u.Content
	if avail := p.width - runewidth.StringWidth(prefix); p.width > 0 && avail > 10 {
		text = wordwrap.String(text, avail)
	}
	for i, line := range strings.Split(text, "\n") {
		if i == 0 {
			fmt.Fprintln(p.w, prefix+line)
		} else {
			fmt.Fprintln(p.w, cont+line)
		}
	}
}
