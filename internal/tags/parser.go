// Package tags extracts the bracketed directive tags the model embeds in its spoken
// output and returns the display text with those tags removed.
//
// Tags are matched in a fixed priority order, repeating until nothing new matches.
// For each kind only the first occurrence is extracted; later duplicates stay in
// the text. Brackets that match no known tag are left untouched.
package tags

import (
	"regexp"
	"strings"
)

type rule struct {
	name  string
	re    *regexp.Regexp
	apply func(r *Result, groups []string)
}

// rules are applied in order. VEO_ACTION goes first because its body is free text
// that may itself contain bracketed fragments.
var rules = []rule{
	{
		name: "VEO_ACTION",
		re:   regexp.MustCompile(`(?s)\[VEO_ACTION:\s*GENERATE\s*\](.*?)\[/VEO_ACTION\]`),
		apply: func(r *Result, g []string) {
			r.VideoPrompt = strings.TrimSpace(g[1])
		},
	},
	{
		name: "SYSTEM_ACTION",
		re:   regexp.MustCompile(`\[SYSTEM_ACTION:\s*(.*?)\s*\|\s*Target:\s*(.*?)\s*\|\s*State:(.*?)\]`),
		apply: func(r *Result, g []string) {
			r.Action = &SystemAction{
				FunctionType: strings.TrimSpace(g[1]),
				Target:       strings.TrimSpace(g[2]),
				State:        strings.TrimSpace(g[3]),
				SubProtocol:  "Default",
			}
		},
	},
	{
		name: "SYSTEM_FAILURE",
		re:   regexp.MustCompile(`\[SYSTEM_FAILURE:\s*(.*?)\]`),
		apply: func(r *Result, g []string) {
			r.SystemInfo = &SystemInfo{SystemFailure: strings.TrimSpace(g[1])}
		},
	},
	{
		name: "UI_ACTION",
		re:   regexp.MustCompile(`\[UI_ACTION:\s*([^|\]]*?)\s*(?:\|\s*Amount:\s*([^\]]*?)\s*)?\]`),
		apply: func(r *Result, g []string) {
			r.UIAction = &UIAction{Type: g[1], Amount: g[2]}
		},
	},
	{
		name: "SETTING_UPDATE",
		re:   regexp.MustCompile(`\[SETTING_UPDATE:\s*([^=\]]*?)\s*=\s*([^\]]*?)\s*\]`),
		apply: func(r *Result, g []string) {
			r.SettingsUpdate = &SettingsUpdate{Key: g[1], Value: g[2]}
		},
	},
	{
		name: "DISPLAY_RENDER",
		re:   regexp.MustCompile(`\[DISPLAY_RENDER:\s*([^|\]]*?)\s*(\|[^\]]*)?\]`),
		apply: func(r *Result, g []string) {
			r.Render = &Render{Subject: g[1], Attributes: parseAttributes(g[2])}
		},
	},
	{
		name: "RUNNING_SIMULATION",
		re:   regexp.MustCompile(`\[RUNNING_SIMULATION:\s*([^\]]*?)\s*\]`),
		apply: func(r *Result, g []string) {
			r.Simulation = &Simulation{Parameters: parseAttributes(g[1])}
		},
	},
	{
		name: "DISPLAY_WIDGET",
		re:   regexp.MustCompile(`\[DISPLAY_WIDGET:\s*([^|\]]*?)\s*(\|[^\]]*)?\]`),
		apply: func(r *Result, g []string) {
			r.Widget = &Widget{Name: g[1], Attributes: parseAttributes(g[2])}
		},
	},
	{
		name: "CREATING_FILE",
		re:   regexp.MustCompile(`\[CREATING_FILE:\s*([^\]]*?)\s*\]`),
		apply: func(r *Result, g []string) {
			r.FileOperation = &FileOperation{Filename: g[1]}
		},
	},
	{
		name: "ACCESSING_DATABASE",
		re:   regexp.MustCompile(`\[ACCESSING_DATABASE:\s*([^\]]*?)\s*\]`),
		apply: func(r *Result, g []string) {
			r.DatabaseAccess = &DatabaseAccess{Source: g[1]}
		},
	},
	{
		name: "CURRENT_MODE",
		re:   regexp.MustCompile(`\[CURRENT_MODE:\s*([^\]]*?)\s*\]`),
		apply: func(r *Result, g []string) {
			r.Mode = g[1]
		},
	},
	{
		name: "VISUAL_WIDGET",
		re:   regexp.MustCompile(`\[VISUAL_WIDGET:\s*([^\]]*?)\s*\]`),
		apply: func(r *Result, g []string) {
			r.VisualContext = g[1]
		},
	},
}

var speakerLabel = regexp.MustCompile(`(?i)^\s*(?:\*\*)?jarvis\s*:(?:\*\*)?\s*`)

// Parse splits model text into display text and structured directives.
// It never fails; text without tags comes back trimmed with no directives.
func Parse(text string) Result {
	var res Result
	// Removing a tag can splice a skipped one together, so passes repeat until
	// no kind that is still unset matches.
	matched := make([]bool, len(rules))
	for progress := true; progress; {
		progress = false
		for i, rl := range rules {
			if matched[i] {
				continue
			}
			loc := rl.re.FindStringSubmatchIndex(text)
			if loc == nil {
				continue
			}
			rl.apply(&res, submatches(text, loc))
			text = text[:loc[0]] + text[loc[1]:]
			matched[i], progress = true, true
		}
	}

	for {
		loc := speakerLabel.FindStringIndex(text)
		if loc == nil || loc[1] == 0 {
			break
		}
		text = text[loc[1]:]
	}
	res.CleanedText = strings.TrimSpace(text)
	return res
}

// Kinds returns the tag names the parser recognises, in priority order
func Kinds() []string {
	names := make([]string, len(rules))
	for i, rl := range rules {
		names[i] = rl.name
	}
	return names
}

func submatches(text string, loc []int) []string {
	groups := make([]string, len(loc)/2)
	for i := range groups {
		if start, end := loc[2*i], loc[2*i+1]; start >= 0 {
			groups[i] = text[start:end]
		}
	}
	return groups
}

// parseAttributes reads "| Key: Value | Key='Value'" style lists
func parseAttributes(raw string) []Attribute {
	var attrs []Attribute
	for _, part := range strings.Split(raw, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value := part, ""
		if i := strings.IndexAny(part, ":="); i >= 0 {
			key, value = strings.TrimSpace(part[:i]), strings.TrimSpace(part[i+1:])
		}
		attrs = append(attrs, Attribute{Key: key, Value: strings.Trim(value, `'"`)})
	}
	return attrs
}
