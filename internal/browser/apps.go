package browser

import (
	"sort"
	"strings"
)

var applicationURLs = map[string]string{
	"youtube":   "https://www.youtube.com",
	"spotify":   "https://open.spotify.com",
	"google":    "https://www.google.com",
	"gmail":     "https://mail.google.com",
	"github":    "https://github.com",
	"reddit":    "https://www.reddit.com",
	"twitter":   "https://twitter.com",
	"x":         "https://x.com",
	"amazon":    "https://www.amazon.com",
	"wikipedia": "https://www.wikipedia.org",
	"whatsapp":  "https://web.whatsapp.com",
	"vscode":    "vscode://file",
	"chatgpt":   "https://chat.openai.com",
	"claude":    "https://claude.ai",
}

// ApplicationURL resolves a known application name, ignoring case
func ApplicationURL(name string) (string, bool) {
	url, ok := applicationURLs[strings.ToLower(strings.TrimSpace(name))]
	return url, ok
}

// Applications returns the known application names in sorted order
func Applications() []string {
	names := make([]string, 0, len(applicationURLs))
	for name := range applicationURLs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
