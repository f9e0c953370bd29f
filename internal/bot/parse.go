package bot

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// EntitiesToHTML rebuilds the inline markup of a message as HTML.
// Entity offsets are in UTF-16 code units, so the text is walked in
// code units, not runes. Escaping is applied to the text itself; tags
// are inserted at entity boundaries.
func EntitiesToHTML(text string, entities []tgbotapi.MessageEntity) string {
	if len(entities) == 0 {
		return escapeHTML(text)
	}

	units := utf16.Encode([]rune(text))

	sorted := make([]tgbotapi.MessageEntity, len(entities))
	copy(sorted, entities)
	sortEntities(sorted)

	opens := make(map[int][]string)
	closes := make(map[int][]string)
	for _, e := range sorted {
		open, closing, ok := entityTags(e)
		if !ok {
			continue
		}
		opens[e.Offset] = append(opens[e.Offset], open)
		// Prepend so inner entities close before outer ones.
		closes[e.Offset+e.Length] = append([]string{closing}, closes[e.Offset+e.Length]...)
	}

	var b strings.Builder
	for i := 0; i <= len(units); i++ {
		for _, tag := range closes[i] {
			b.WriteString(tag)
		}
		for _, tag := range opens[i] {
			b.WriteString(tag)
		}
		if i == len(units) {
			break
		}

		// Decode one code point; surrogate pairs consume two units.
		r := rune(units[i])
		if utf16.IsSurrogate(r) && i+1 < len(units) {
			r = utf16.DecodeRune(rune(units[i]), rune(units[i+1]))
			i++
		}
		b.WriteString(escapeHTML(string(r)))
	}
	return b.String()
}

func entityTags(e tgbotapi.MessageEntity) (open, closing string, ok bool) {
	switch e.Type {
	case "bold":
		return "<b>", "</b>", true
	case "italic":
		return "<i>", "</i>", true
	case "underline":
		return "<u>", "</u>", true
	case "strikethrough":
		return "<s>", "</s>", true
	case "code":
		return "<code>", "</code>", true
	case "pre":
		return "<pre>", "</pre>", true
	case "text_link":
		return fmt.Sprintf("<a href='%s'>", e.URL), "</a>", true
	default:
		return "", "", false
	}
}

func escapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// MessageLink builds the t.me link to a channel message. Private
// channels use the /c/ form with the bare internal ID.
func MessageLink(msg *tgbotapi.Message) string {
	if msg.Chat.UserName != "" {
		return fmt.Sprintf("https://t.me/%s/%d", msg.Chat.UserName, msg.MessageID)
	}
	return fmt.Sprintf("https://t.me/c/%d/%d", internalChatID(msg.Chat.ID), msg.MessageID)
}

// internalChatID strips the -100 prefix Telegram puts on channel IDs.
func internalChatID(chatID int64) int64 {
	if chatID < 0 {
		return -chatID - 1000000000000
	}
	return chatID
}

// messageHTML returns the message's text or caption with inline markup
// rebuilt, and whether it came from a caption.
func messageHTML(msg *tgbotapi.Message) (text string, isCaption bool) {
	if msg.Caption != "" {
		return EntitiesToHTML(msg.Caption, msg.CaptionEntities), true
	}
	return EntitiesToHTML(msg.Text, msg.Entities), false
}

// sortEntities orders entities by offset, outer-first on ties. The API
// delivers them ordered already; this guards reconstructed fixtures.
func sortEntities(entities []tgbotapi.MessageEntity) {
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Offset != entities[j].Offset {
			return entities[i].Offset < entities[j].Offset
		}
		return entities[i].Length > entities[j].Length
	})
}
