package broadcasts

import (
	"net"
	"net/url"
	"strings"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

const maxButtons = 10

// NormalizeButtons trims every button, prefixes bare links with https:// and
// drops buttons that still lack a label or a routable http(s) URL.
func NormalizeButtons(in []model.BroadcastButton) []model.BroadcastButton {
	out := make([]model.BroadcastButton, 0, len(in))
	for _, button := range in {
		text := strings.TrimSpace(button.Text)
		link := normalizeURL(button.URL)
		if text == "" || link == "" {
			continue
		}

		out = append(out, model.BroadcastButton{Text: text, URL: link})
		if len(out) == maxButtons {
			break
		}
	}
	return out
}

func normalizeURL(raw string) string {
	link := strings.TrimSpace(raw)
	if link == "" {
		return ""
	}
	if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
		link = "https://" + link
	}

	parsed, err := url.Parse(link)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return ""
	}

	host := parsed.Hostname()
	switch {
	case host == "localhost":
	case net.ParseIP(host) != nil:
	case strings.Contains(host, ".") && len(host) < 253:
	default:
		return ""
	}

	return link
}
