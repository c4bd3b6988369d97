package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/baskills/meetingvoice/internal/transcript"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	historyRaw   bool
	historyPrune time.Duration

	historyCmd = &cobra.Command{
		Use:     "history [SESSION]",
		Short:   "List past meetings or show one transcript",
		Long:    paragraph(fmt.Sprintf("\nWithout arguments, %s recorded meetings, newest first. With a session id (or a unique prefix of one), render that meeting's transcript.", keyword("list"))),
		Example: paragraph("meetingvoice history\nmeetingvoice history 3f2a\nmeetingvoice history --prune 720h"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := transcript.Open(cmd.Context(), cfg.Transcript.Path)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			if historyPrune > 0 {
				n, err := store.Prune(cmd.Context(), historyPrune)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "Removed %d %s older than %s.\n", n, plural(n, "meeting"), historyPrune)
				return nil
			}

			if len(args) == 0 {
				sessions, err := store.Sessions(cmd.Context())
				if err != nil {
					return err
				}
				return printSessions(os.Stdout, sessions, time.Now())
			}

			md, err := store.Markdown(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderMarkdown(os.Stdout, md)
		},
	}
)

func init() {
	historyCmd.Flags().BoolVar(&historyRaw, "raw", false, "print Markdown without rendering")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "delete meetings older than this and exit")
}

func printSessions(w io.Writer, sessions []transcript.Session, now time.Time) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No meetings recorded yet.")
		return err
	}

	const titleWidth = 40
	fmt.Fprintf(w, "%-8s  %-14s  %5s  %s\n", "SESSION", "STARTED", "LINES", "TITLE")
	for _, s := range sessions {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		title := s.Title
		if title == "" {
			title = "-"
		}
		title = runewidth.Truncate(title, titleWidth, "…")
		started := humanize.RelTime(s.StartedAt, now, "ago", "from now")
		if _, err := fmt.Fprintf(w, "%-8s  %-14s  %5d  %s\n", id, started, s.Utterances, title); err != nil {
			return err
		}
	}
	return nil
}

func renderMarkdown(w io.Writer, md string) error {
	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	if historyRaw || !isTerminal {
		_, err := fmt.Fprint(w, md)
		return err
	}

	width := 80
	if tw, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = min(tw, 120)
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("unable to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("unable to render markdown: %w", err)
	}
	_, err = fmt.Fprint(w, out)
	return err
}

func plural(n int64, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
