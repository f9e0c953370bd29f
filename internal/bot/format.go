package bot

import (
	"fmt"
	"strings"

	"mirror_bot/internal/model"
)

// FooterLinks carries the channel names the footer anchors point at.
type FooterLinks struct {
	BackupChannelName  string
	SourcesChannelName string
}

// FormatPost appends the attribution footer to a translated post. The
// footer names the source (with its bias marker when set) linked to
// the original message, then a backup-archive anchor, an invite anchor
// for sources reachable only by invite link, a source-detail anchor,
// and finally the destination's own footer. Length budgeting happens
// before this; the footer is never truncated.
func FormatPost(text, link string, src model.SourceDisplay, backupID int, destFooter string, links FooterLinks) string {
	var b strings.Builder
	b.WriteString(text)

	fmt.Fprintf(&b, "\n\nQuelle: <a href='%s'>%s", link, src.DisplayName)
	if src.Bias != "" {
		b.WriteString(" " + src.Bias)
	}
	fmt.Fprintf(&b, "</a> |<a href='https://t.me/%s/%d'> 💾 </a>", links.BackupChannelName, backupID)

	if src.Username == "" && src.Invite != "" {
		fmt.Fprintf(&b, "|<a href='https://t.me/+%s'> 🔗️ </a>", src.Invite)
	}

	if src.DetailID != 0 {
		fmt.Fprintf(&b, "|<a href='https://t.me/%s/%d'> ℹ️ </a>", links.SourcesChannelName, src.DetailID)
	}

	if destFooter != "" {
		b.WriteString(destFooter)
	}

	return b.String()
}
