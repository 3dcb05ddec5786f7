// Package cleanup flattens free-text model replies into a single display line.
package cleanup

import (
	"regexp"
	"strings"
	"unicode"
)

// ws matches what the model may emit as whitespace, not only ASCII.
const ws = `[\t\n\v\f\r \x{1c}-\x{1f}\x{85}\p{Z}]`

var (
	headingMarker   = regexp.MustCompile(`#+` + ws + `+`)
	emphasis        = regexp.MustCompile(`[*_~]{1,3}(.*?)[*_~]{1,3}`)
	codeFence       = regexp.MustCompile("(?s)```.*?```")
	markdownLink    = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	numberedItem    = regexp.MustCompile(`(?:^|\n)\p{Nd}+\.` + ws + `+`)
	followingItem   = regexp.MustCompile(`\n\p{Nd}+\.` + ws + `+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
	whitespaceRun   = regexp.MustCompile(ws + `{2,}`)
	bulletReplacer  = strings.NewReplacer("\n- ", " • ", "\n* ", " • ")
	escapedNewlines = strings.NewReplacer(`\n`, "\n")
)

// boilerplatePrefixes are lead-ins the model prepends despite the system instruction.
var boilerplatePrefixes = []string{
	"Après avoir analysé la transcription de l'appel, ",
	"Voici ",
	"D'après l'analyse de la transcription, ",
	"Basé sur la transcription fournie, ",
}

// Clean runs the transform chain over a model reply. Steps are order dependent:
// markup is removed before escaped newlines are expanded, and list markers are
// rewritten before the remaining newlines are flattened.
func Clean(text string) string {
	if text == "" {
		return text
	}

	text = stripBoilerplate(text)

	text = headingMarker.ReplaceAllString(text, "")
	text = emphasis.ReplaceAllString(text, "${1}")
	text = codeFence.ReplaceAllString(text, "")
	text = markdownLink.ReplaceAllString(text, "${1}")

	text = escapedNewlines.Replace(text)

	text = bulletReplacer.Replace(text)
	// A leading marker is dropped only when the text is a list. Cleaned text has
	// no newlines left, so a second pass never drops another one.
	isList := followingItem.MatchString(text)
	text = numberedItem.ReplaceAllStringFunc(text, func(marker string) string {
		switch {
		case strings.HasPrefix(marker, "\n"):
			return " | "
		case isList:
			return ""
		}
		return marker
	})

	text = blankLines.ReplaceAllString(text, "\n\n")
	text = strings.ReplaceAll(text, "\n", " ")
	text = whitespaceRun.ReplaceAllString(text, " ")

	return strings.TrimFunc(text, isSpace)
}

func stripBoilerplate(text string) string {
	for _, prefix := range boilerplatePrefixes {
		if strings.HasPrefix(text, prefix) {
			return text[len(prefix):]
		}
	}
	return text
}

func isSpace(r rune) bool {
	switch {
	case r == ' ', r >= '\t' && r <= '\r', r >= 0x1c && r <= 0x1f, r == 0x85:
		return true
	}
	return unicode.Is(unicode.Z, r)
}
