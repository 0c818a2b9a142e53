package server

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// getLinkPattern matches bare http(s) URLs in bot reply text. Angle brackets
// and square brackets terminate a URL so already-marked-up text is left alone.
var getLinkPattern = sync.OnceValue(func() *regexp.Regexp {
	return regexp.MustCompile(`\b(?:http|https)://[^\s<>\[\]]+`)
})

// reshapeContent rewrites bare URLs in a bot reply into anchors. Links to the
// storefront itself open in the same tab, everything else in a new one. Each
// link gets a show_chat=1 flag so following it later reopens the widget, and
// a best-effort preview thumbnail when one resolves.
func (h *Handlers) reshapeContent(ctx context.Context, content string) string {
	return getLinkPattern().ReplaceAllStringFunc(content, func(raw string) string {
		href := appendChatFlag(raw)
		target := ` target="_blank" rel="noopener"`
		if sameHost(raw, h.deps.SiteHost) {
			target = ""
		}

		anchor := fmt.Sprintf(`<a href="%s"%s>%s</a>`, href, target, raw)
		if h.deps.Resolver != nil {
			if img, ok := h.deps.Resolver.Resolve(ctx, raw); ok {
				anchor += fmt.Sprintf(`<br><a href="%s"%s><img src="%s" alt="" class="chat-link-preview"></a>`, href, target, img)
			}
		}
		return anchor
	})
}

// appendChatFlag adds the query flag that reopens the chat widget when the
// visitor follows the link.
func appendChatFlag(raw string) string {
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "show_chat=1"
}

// sameHost reports whether the URL points at the storefront itself. Ports are
// ignored so dev setups behind a proxy still match.
func sameHost(raw, siteHost string) bool {
	if siteHost == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), stripPort(siteHost))
}

func stripPort(host string) string {
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		return host[:idx]
	}
	return host
}
