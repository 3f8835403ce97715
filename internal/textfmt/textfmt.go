// Package textfmt turns raw post captions into titles and descriptions for
// Pinterest-style bulk uploads.
package textfmt

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxTitleRunes is the longest title written to the output table.
	MaxTitleRunes = 100

	Ellipsis        = "..."
	FallbackTitle   = "Check out this video"
	DefaultHashtags = "#reels #viral #explore"
)

// Publish holds the Pinterest title and description for a post.
type Publish struct {
	Title       string
	Description string
}

// Format splits a caption into a publish title and description. Hashtags
// are moved, in order, to the end of the description.
func Format(caption string) Publish {
	text, tags := splitHashtags(Normalize(caption))
	clean := collapseSpaces(stripEmoji(text))

	var title, overflow string
	if utf8.RuneCountInString(clean) <= MaxTitleRunes {
		title = clean
	} else {
		title, overflow = truncateAtSpace(clean, MaxTitleRunes)
		title += Ellipsis
	}
	if title == "" {
		title = FallbackTitle
	}

	hashtags := strings.Join(tags, " ")
	if hashtags == "" {
		hashtags = DefaultHashtags
	}
	desc := hashtags
	if overflow != "" {
		desc = overflow + "\n\n" + hashtags
	}
	return Publish{Title: title, Description: desc}
}

// PlainTitle returns the single-line title for the output table, preferring
// title and falling back to caption.
func PlainTitle(title, caption string) string {
	s := title
	if strings.TrimSpace(s) == "" {
		s = caption
	}
	s = collapseSpaces(Normalize(s))
	if utf8.RuneCountInString(s) > MaxTitleRunes {
		s = string([]rune(s)[:MaxTitleRunes]) + Ellipsis
	}
	return s
}

// Normalize applies NFKC, drops invisible and control characters other than
// newline, and collapses horizontal whitespace runs to one space.
func Normalize(s string) string {
	s = norm.NFKC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteRune(r)
			space = false
		case isInvisible(r):
		case unicode.IsSpace(r):
			if !space {
				b.WriteByte(' ')
				space = true
			}
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
			space = false
		}
	}
	return strings.TrimSpace(b.String())
}

// isInvisible reports format characters such as zero-width spaces, joiners,
// direction marks and the byte order mark.
func isInvisible(r rune) bool {
	return unicode.Is(unicode.Cf, r) || r == '\u180e'
}

func splitHashtags(s string) (text string, tags []string) {
	var words []string
	for _, tok := range strings.Fields(s) {
		if strings.HasPrefix(tok, "#") {
			tags = append(tags, tok)
			continue
		}
		words = append(words, tok)
	}
	return strings.Join(words, " "), tags
}

var emojiRanges = [][2]rune{
	{0x1F000, 0x1F02F}, // mahjong
	{0x1F0A0, 0x1F0FF}, // playing cards
	{0x1F100, 0x1F1FF}, // enclosed alphanumerics, flags
	{0x1F300, 0x1F5FF}, // symbols and pictographs
	{0x1F600, 0x1F64F}, // emoticons
	{0x1F680, 0x1F6FF}, // transport and map
	{0x1F700, 0x1F77F},
	{0x1F780, 0x1F7FF},
	{0x1F800, 0x1F8FF},
	{0x1F900, 0x1F9FF},
	{0x1FA00, 0x1FAFF},
	{0x2600, 0x26FF}, // misc symbols
	{0x2700, 0x27BF}, // dingbats
	{0x2300, 0x23FF},
	{0x2B00, 0x2BFF},
	{0xFE00, 0xFE0F}, // variation selectors
	{0x1F3FB, 0x1F3FF},
	{0xE0020, 0xE007F}, // tag characters
}

func isEmoji(r rune) bool {
	for _, rg := range emojiRanges {
		if r >= rg[0] && r <= rg[1] {
			return true
		}
	}
	return r == '\u20e3'
}

func stripEmoji(s string) string {
	return strings.Map(func(r rune) rune {
		if isEmoji(r) {
			return -1
		}
		return r
	}, s)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateAtSpace cuts s to at most limit runes at the last space before the
// limit. The remainder, trimmed, is returned as rest.
func truncateAtSpace(s string, limit int) (head, rest string) {
	runes := []rune(s)
	if len(runes) <= limit {
		return s, ""
	}
	cut := limit
	for i := limit; i > 0; i-- {
		if runes[i] == ' ' {
			cut = i
			break
		}
	}
	head = strings.TrimSpace(string(runes[:cut]))
	rest = strings.TrimSpace(string(runes[cut:]))
	return head, rest
}
