// Package naming generates batch tokens and derives display names and
// storage slugs from free text.
package naming

import (
	"crypto/rand"
	"regexp"
	"strings"
	"unicode"
)

const (
	// tokenAlphabet is the fixed 36-character token alphabet. Tokens are
	// case-sensitive; the alphabet simply never emits upper case.
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

	// TokenLength is the length of every public batch token.
	TokenLength = 12

	// cacheKeyLength sizes the compact keys used in control references.
	cacheKeyLength = 8

	// maxSlugLength bounds sanitized display slugs.
	maxSlugLength = 60
)

// GenerateToken returns a collision-resistant public batch token drawn from
// the fixed alphabet with a cryptographically strong source. Collisions are
// accepted as negligible and not checked against the index.
func GenerateToken() string {
	return randomString(TokenLength)
}

// NewCacheKey returns a short key suitable for size-constrained control
// references.
func NewCacheKey() string {
	return randomString(cacheKeyLength)
}

func randomString(n int) string {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic("naming: crypto/rand unavailable: " + err.Error())
		}
		for _, b := range buf {
			// Rejection sampling keeps the draw uniform over the alphabet.
			if int(b) >= 252 {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}

var (
	leadingLabel = regexp.MustCompile(`(?i)^(movie|tv series|tv|series|show)\s*[:\x2D\x{2013}\x{2014}]\s*`)
	trailingYear = regexp.MustCompile(`\s*(?:[\x2D\x{2013}\x{2014}]\s*(?:19|20)\d{2}|[(\[{]\s*(?:19|20)\d{2}\s*[)\]}])\s*$`)
	multiSpace   = regexp.MustCompile(`\s+`)
)

// SanitizeForDisplay distills free text (a caption line or an original file
// name) into a short slug: decorative symbols and media-type labels are
// stripped, a trailing year suffix is dropped, and only a safe character
// subset survives. The second return is false when nothing usable remains;
// callers must then fall back to a token-derived placeholder.
func SanitizeForDisplay(raw string) (string, bool) {
	s := strings.TrimFunc(raw, unicode.IsSpace)

	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return isDecorative(r) || unicode.IsSpace(r)
	})
	s = leadingLabel.ReplaceAllString(s, "")
	s = trailingYear.ReplaceAllString(s, "")

	var kept strings.Builder
	for _, r := range s {
		if isDecorative(r) {
			continue
		}
		kept.WriteRune(r)
	}
	s = kept.String()

	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}

	var filtered strings.Builder
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			filtered.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			filtered.WriteRune(r)
		}
	}
	s = strings.TrimSpace(multiSpace.ReplaceAllString(filtered.String(), " "))

	if len(s) > maxSlugLength {
		s = strings.TrimSpace(s[:maxSlugLength])
	}
	if s == "" {
		return "", false
	}
	return s, true
}

// SlugForStorage maps arbitrary text onto the storage-safe character subset,
// substituting underscores for everything else and bounding the result so it
// always fits a filesystem name.
func SlugForStorage(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	// The output is pure ASCII, so a byte cut never splits a rune.
	s := b.String()
	if len(s) > maxSlugLength {
		s = strings.TrimRight(s[:maxSlugLength], " ")
	}
	return s
}

// isDecorative covers pictographs, emoji modifiers, and ornamental symbols
// that never belong in a display slug.
func isDecorative(r rune) bool {
	switch {
	case r == 0xFE0F || r == 0x200D: // variation selector, zero-width joiner
		return true
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case r >= 0x2190 && r <= 0x2BFF:
		return true
	case unicode.IsSymbol(r):
		return true
	}
	return false
}
