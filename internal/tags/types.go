package tags

// SystemAction is a background system operation announced by the model
type SystemAction struct {
	FunctionType string `json:"functionType"`
	Target       string `json:"target"`
	State        string `json:"state"`
	SubProtocol  string `json:"subProtocol"`
}

// UIAction asks the host UI to perform a visual operation (e.g. zoom)
type UIAction struct {
	Type   string `json:"type"`
	Amount string `json:"amount,omitempty"`
}

// SettingsUpdate asks the host to change one named setting
type SettingsUpdate struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SystemInfo carries failure notices attached to a message
type SystemInfo struct {
	SystemFailure string `json:"systemFailure,omitempty"`
}

// Attribute is one "Key: Value" or "Key='Value'" pair from a directive, in source order
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Render describes a visual render directive
type Render struct {
	Subject    string      `json:"subject"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// Simulation describes a running-simulation directive
type Simulation struct {
	Parameters []Attribute `json:"parameters,omitempty"`
}

// Widget describes a dashboard widget directive
type Widget struct {
	Name       string      `json:"name"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// FileOperation names a file the model is creating
type FileOperation struct {
	Filename string `json:"filename"`
}

// DatabaseAccess names a data source the model is reading
type DatabaseAccess struct {
	Source string `json:"source"`
}

// Result is the decomposition of one model utterance. Absent directives leave their
// field nil or empty.
type Result struct {
	CleanedText    string
	Action         *SystemAction
	UIAction       *UIAction
	SettingsUpdate *SettingsUpdate
	SystemInfo     *SystemInfo
	Render         *Render
	Simulation     *Simulation
	Widget         *Widget
	FileOperation  *FileOperation
	DatabaseAccess *DatabaseAccess
	VideoPrompt    string
	Mode           string
	VisualContext  string
}

// HasDirectives reports whether any structured field was extracted
func (r Result) HasDirectives() bool {
	return r.Action != nil || r.UIAction != nil || r.SettingsUpdate != nil ||
		r.SystemInfo != nil || r.Render != nil || r.Simulation != nil ||
		r.Widget != nil || r.FileOperation != nil || r.DatabaseAccess != nil ||
		r.VideoPrompt != "" || r.Mode != "" || r.VisualContext != ""
}
