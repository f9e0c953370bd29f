// Package debloat implements the text cleaning pipeline that turns raw
// channel posts into clean, translatable text. The stages are ordered;
// reordering them changes behavior.
package debloat

import (
	"regexp"
	"strings"
)

// IsBlacklisted reports whether the raw text contains a known spam or
// ad phrase.
func IsBlacklisted(text string) bool {
	return reBlacklist.MatchString(text)
}

// StripTags removes inline formatting tags, keeping anchor tags.
func StripTags(text string) string {
	return strings.TrimRight(reHTMLTag.ReplaceAllString(text, ""), " \t\n\r")
}

// MatchPatterns checks the text against a channel's allow-patterns and
// deletes every matched span. The second return value reports whether
// any pattern matched; callers quarantine the message when none did.
// Patterns are matched case-insensitively after their own markup is
// stripped.
func MatchPatterns(text string, patterns []string) (string, bool) {
	if len(patterns) == 0 {
		return text, true
	}

	quoted := make([]string, 0, len(patterns))
	for _, p := range patterns {
		quoted = append(quoted, regexp.QuoteMeta(reHTMLTag.ReplaceAllString(p, "")))
	}

	re, err := regexp.Compile(`(?i)(` + strings.Join(quoted, `)|(`) + `)`)
	if err != nil {
		return text, false
	}
	if !re.MatchString(text) {
		return text, false
	}
	return re.ReplaceAllString(text, ""), true
}

// StripSelfMention removes a trailing @username token referring to the
// originating channel.
func StripSelfMention(text, username string) string {
	if username == "" {
		return text
	}
	re, err := regexp.Compile(`(?i)@` + regexp.QuoteMeta(username) + `$`)
	if err != nil {
		return text
	}
	return strings.TrimRight(re.ReplaceAllString(text, ""), " \t\n\r")
}

// StripHashtags removes a trailing run of hashtag tokens.
func StripHashtags(text string) string {
	return strings.TrimRight(reHashtag.ReplaceAllString(text, ""), " \t\n\r")
}

// HasInviteLink reports whether the text contains an invite-style link
// fragment, a heuristic for undisclosed advertising.
func HasInviteLink(text string) bool {
	return strings.Contains(text, "t.me/+")
}

// SpaceSymbols inserts a space between a symbol character and a
// directly following word so translation does not glue them together.
func SpaceSymbols(text string) string {
	return reSymbolSpace.ReplaceAllString(text, "$1 $2")
}

// ExtractSymbols records all symbol characters and anchor tags in
// order and replaces each occurrence with the shared placeholder.
func ExtractSymbols(text string) (string, []string) {
	symbols := reSymbol.FindAllString(text, -1)
	replaced := reSymbol.ReplaceAllString(text, Placeholder)
	return strings.TrimRight(replaced, " \t\n\r"), symbols
}

// RestoreSymbols substitutes placeholders back with the extracted
// symbols, first placeholder to first symbol. Restoration is
// positional; translation may have changed everything in between.
func RestoreSymbols(text string, symbols []string) string {
	for _, sym := range symbols {
		text = strings.Replace(text, Placeholder, sym, 1)
	}
	return text
}

// ExpandAbbreviations rewrites terms and abbreviations the translation
// backends handle poorly.
func ExpandAbbreviations(text string) string {
	text = reTerm.ReplaceAllString(text, termExpansion)
	for abbr, meaning := range abbreviations {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(abbr) + `\b`)
		if err != nil {
			continue
		}
		text = re.ReplaceAllString(text, meaning)
	}
	return text
}

// StripModifiers removes leftover skin-tone and gender modifier code
// points that survive the translation round trip.
func StripModifiers(text string) string {
	return strings.TrimRight(reModifier.ReplaceAllString(text, ""), " \t\n\r")
}
