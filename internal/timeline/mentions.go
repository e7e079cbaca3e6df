package timeline

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segment is a run of message text. Mention segments include the leading
// '@'.
type Segment struct {
	Text    string
	Mention bool
}

// Segments splits content into plain text and "@name" mention tokens. A
// token is '@' followed by word characters, bounded on both sides by
// whitespace, sentence punctuation or the string edges. Mentions are not
// checked against any member list.
func Segments(content string) []Segment {
	var (
		out   []Segment
		plain strings.Builder
	)

	flush := func() {
		if plain.Len() > 0 {
			out = append(out, Segment{Text: plain.String()})
			plain.Reset()
		}
	}

	prev := rune(-1)
	for i := 0; i < len(content); {
		r, size := utf8.DecodeRuneInString(content[i:])

		if r == '@' && (prev == -1 || isBoundary(prev)) {
			end := i + size
			for end < len(content) {
				wr, wsize := utf8.DecodeRuneInString(content[end:])
				if !isWord(wr) {
					break
				}
				end += wsize
			}

			trailing := rune(-1)
			if end < len(content) {
				trailing, _ = utf8.DecodeRuneInString(content[end:])
			}

			if end > i+size && (trailing == -1 || isBoundary(trailing)) {
				flush()
				out = append(out, Segment{Text: content[i:end], Mention: true})
				prev, _ = utf8.DecodeLastRuneInString(content[i:end])
				i = end
				continue
			}
		}

		plain.WriteRune(r)
		prev = r
		i += size
	}

	flush()
	return out
}

// Mentions returns the names mentioned in content without the '@'.
func Mentions(content string) []string {
	var names []string
	for _, s := range Segments(content) {
		if s.Mention {
			names = append(names, s.Text[1:])
		}
	}
	return names
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isBoundary(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '.', ',', '!', '?', ';', ':':
		return true
	}
	return false
}
