package speech

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// markdownMarkers are characters that may start inline or block markdown.
// Text without any of them is returned as is.
const markdownMarkers = "*_`#>[]<\\~|"

// Clean returns the speakable text of a markdown fragment. Emphasis, links
// and headings are reduced to their text, code blocks are dropped and
// whitespace is collapsed. Inline HTML and emphasis markers inside a word
// ("5*3*2") are kept verbatim.
func Clean(src string) string {
	if !looksLikeMarkdown(src) {
		return collapseSpace(src)
	}

	reader := text.NewReader([]byte(src))
	doc := md.Parser().Parse(reader)

	var buf strings.Builder
	walk(doc, reader.Source(), &buf)
	return collapseSpace(buf.String())
}

func looksLikeMarkdown(s string) bool {
	if strings.ContainsAny(s, markdownMarkers) {
		return true
	}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "+ ") {
			return true
		}
	}
	return false
}

func walk(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return

	case *ast.RawHTML:
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			buf.Write(seg.Value(source))
		}
		return

	case *ast.HTMLBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
			buf.WriteByte(' ')
		}
		if n.HasClosure() {
			buf.Write(n.ClosureLine.Value(source))
		}
		buf.WriteByte(' ')
		return

	case *ast.Emphasis:
		if marker, ok := intraword(n, source); ok {
			delim := strings.Repeat(string(marker), n.Level)
			buf.WriteString(delim)
			walkChildren(n, source, buf)
			buf.WriteString(delim)
			return
		}

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteByte(' ')
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.AutoLink:
		buf.Write(n.Label(source))
		return

	case *ast.Image:
		// Alt text only; the URL is not speakable.
		walkChildren(n, source, buf)
		return

	case *ast.Heading, *ast.ListItem:
		walkChildren(n, source, buf)
		endSentence(buf)
		return

	case *ast.Paragraph, *ast.TextBlock:
		walkChildren(n, source, buf)
		buf.WriteByte(' ')
		return

	case *ast.ThematicBreak:
		endSentence(buf)
		return
	}

	walkChildren(node, source, buf)
}

func walkChildren(node ast.Node, source []byte, buf *strings.Builder) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		walk(c, source, buf)
	}
}

// intraword reports whether the delimiters of n touch a letter or digit on
// the outside, as in "5*3*2", and returns the delimiter character. Such
// markers are arithmetic or identifiers rather than emphasis.
func intraword(n *ast.Emphasis, source []byte) (byte, bool) {
	first, last := firstText(n), lastText(n)
	if first == nil || last == nil {
		return 0, false
	}
	open := first.Segment.Start - n.Level
	closeEnd := last.Segment.Stop + n.Level
	if open < 0 || closeEnd > len(source) {
		return 0, false
	}

	marker := source[open]
	if r, _ := utf8.DecodeLastRune(source[:open]); open > 0 && isWord(r) {
		return marker, true
	}
	if r, _ := utf8.DecodeRune(source[closeEnd:]); closeEnd < len(source) && isWord(r) {
		return marker, true
	}
	return 0, false
}

func firstText(n ast.Node) *ast.Text {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			return t
		}
		if t := firstText(c); t != nil {
			return t
		}
	}
	return nil
}

func lastText(n ast.Node) *ast.Text {
	for c := n.LastChild(); c != nil; c = c.PreviousSibling() {
		if t, ok := c.(*ast.Text); ok {
			return t
		}
		if t := lastText(c); t != nil {
			return t
		}
	}
	return nil
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// endSentence terminates the text written so far with a period unless it
// already ends in punctuation, so list items and headings are read as
// separate sentences.
func endSentence(buf *strings.Builder) {
	s := strings.TrimRight(buf.String(), " ")
	if s == "" {
		return
	}
	buf.Reset()
	buf.WriteString(s)
	switch s[len(s)-1] {
	case '.', '!', '?', ':', ';', ',':
		buf.WriteByte(' ')
	default:
		buf.WriteString(". ")
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
