// Package kebab converts between capitalized compound identifiers such as
// "DistrictLogo" and the hyphenated lowercase form "district-logo" used in
// URL path segments.
//
// Every uppercase letter starts a new word, so acronym runs are split letter
// by letter ("HIBForm" becomes "h-i-b-form"). Tokens already embedded in
// published URLs depend on this segmentation; do not special-case acronyms.
package kebab

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ToKebab splits s before each uppercase letter, lowercases that letter and
// joins the words with "-". A leading lowercase run forms the first word.
func ToKebab(s string) string {
	var words []string
	var word strings.Builder
	for _, r := range s {
		if unicode.IsUpper(r) {
			if word.Len() > 0 {
				words = append(words, word.String())
				word.Reset()
			}
			word.WriteRune(unicode.ToLower(r))
			continue
		}
		word.WriteRune(r)
	}
	if word.Len() > 0 {
		words = append(words, word.String())
	}
	return strings.Join(words, "-")
}

// ToCapitalized splits s on "-", uppercases the first letter of each segment,
// lowercases the rest and concatenates the segments.
func ToCapitalized(s string) string {
	var b strings.Builder
	for _, seg := range strings.Split(s, "-") {
		b.WriteString(capitalize(seg))
	}
	return b.String()
}

func capitalize(seg string) string {
	if seg == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(seg)
	return string(unicode.ToUpper(r)) + strings.ToLower(seg[size:])
}
