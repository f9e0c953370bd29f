package debloat

import "regexp"

// Placeholder substitutes extracted symbols and anchor tags before
// translation. Translators leave the no-translate body tag untouched,
// which protects the symbols from corruption.
const Placeholder = `<body translate="no">`

var (
	// reBlacklist matches known spam/ad phrases. A hit rejects the
	// message outright.
	reBlacklist = regexp.MustCompile(`(?i)(Нічний чат, правила стандартні:)|(paypal)|(patreon)`)

	// reHTMLTag strips inline formatting tags but leaves anchor tags in
	// place; footer and read-more links depend on anchors surviving.
	reHTMLTag = regexp.MustCompile(`<[^a>]+>`)

	// reHashtag matches a trailing run of whitespace-separated hashtags.
	reHashtag = regexp.MustCompile(`(\s+#\S*)*$`)

	// reSymbolSpace matches a symbol glued to a following word.
	reSymbolSpace = regexp.MustCompile(`([‼\p{So}])([^\s‼\p{So}]+)`)

	// reSymbol matches a single symbol/pictograph or an anchor tag.
	reSymbol = regexp.MustCompile(`[‼\p{So}]|</?a[^>]*>`)

	// reModifier matches skin-tone and gender modifier code points that
	// survive translation after their base emoji was restored.
	reModifier = regexp.MustCompile(`[\x{1F3FB}-\x{1F3FF}\x{2640}\x{2642}\x{FE0F}]`)

	// reTerm expands terms the translators consistently mangle.
	reTerm = regexp.MustCompile(`(?i)ЗСУ`)
)

const termExpansion = "Збро́йні си́ли Украї́ни"

// abbreviations are expanded whole-word and case-insensitively before
// translation.
var abbreviations = map[string]string{
	"AFU": "ukrainian Armed forces",
}
