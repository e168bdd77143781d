package live

import (
	"github.com/lexiqai/jarvis-gateway/internal/tags"
)

// Sender identifies who a chat message belongs to
type Sender string

const (
	SenderUser         Sender = "user"
	SenderModel        Sender = "model"
	SenderSystemAction Sender = "system-action"
)

// Message is one chat entry emitted to the host. Model messages carry the
// directives parsed out of the spoken text.
type Message struct {
	ID     string `json:"id"`
	Sender Sender `json:"sender"`
	Text   string `json:"text"`

	Action         *tags.SystemAction   `json:"action,omitempty"`
	UIAction       *tags.UIAction       `json:"uiAction,omitempty"`
	SettingsUpdate *tags.SettingsUpdate `json:"settingsUpdate,omitempty"`
	SystemInfo     *tags.SystemInfo     `json:"systemInfo,omitempty"`
	Render         *tags.Render         `json:"renderModel,omitempty"`
	Simulation     *tags.Simulation     `json:"simulation,omitempty"`
	Widget         *tags.Widget         `json:"widget,omitempty"`
	FileOperation  *tags.FileOperation  `json:"fileOperation,omitempty"`
	DatabaseAccess *tags.DatabaseAccess `json:"databaseAccess,omitempty"`
	VideoPrompt    string               `json:"videoPrompt,omitempty"`
	VideoURL       string               `json:"videoUrl,omitempty"`
	Mode           string               `json:"mode,omitempty"`
	VisualContext  string               `json:"visualContext,omitempty"`
}
