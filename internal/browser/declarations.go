package browser

import (
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"google.golang.org/genai"
)

// Tool names understood by the executor
const (
	ToolNavigate        = "navigate"
	ToolScroll          = "scroll"
	ToolClick           = "click"
	ToolTypeText        = "typeText"
	ToolPressKey        = "pressKey"
	ToolOpenApplication = "openApplication"
)

// NavigateArgs are the arguments of the navigate tool
type NavigateArgs struct {
	Direction string `json:"direction" jsonschema:"enum=back,enum=forward,enum=home,description=Direction to navigate: back or forward or home (reload)."`
}

// ScrollArgs are the arguments of the scroll tool
type ScrollArgs struct {
	Direction string  `json:"direction" jsonschema:"enum=up,enum=down,description=Direction to scroll: up or down."`
	Pixels    float64 `json:"pixels,omitempty" jsonschema:"description=The number of pixels to scroll. Defaults to most of a screen height if not provided."`
}

// ClickArgs are the arguments of the click tool
type ClickArgs struct {
	Selector string `json:"selector" jsonschema:"description=A valid CSS selector for the element to click."`
}

// TypeTextArgs are the arguments of the typeText tool
type TypeTextArgs struct {
	Text     string `json:"text" jsonschema:"description=The text to type into the field."`
	Selector string `json:"selector" jsonschema:"description=A valid CSS selector for the input or textarea element."`
}

// PressKeyArgs are the arguments of the pressKey tool
type PressKeyArgs struct {
	Key      string `json:"key" jsonschema:"description=The key to press such as Enter or Escape."`
	Selector string `json:"selector,omitempty" jsonschema:"description=Optional CSS selector of the element to focus before pressing."`
}

// OpenApplicationArgs are the arguments of the openApplication tool
type OpenApplicationArgs struct {
	AppName string `json:"appName" jsonschema:"description=The name of the application to open."`
}

type toolSpec struct {
	name        string
	description string
	args        any
}

var toolSpecs = []toolSpec{
	{ToolNavigate, "Navigates the browser page.", NavigateArgs{}},
	{ToolScroll, "Scrolls the main window of the page.", ScrollArgs{}},
	{ToolClick, "Clicks an element on the page using a CSS selector.", ClickArgs{}},
	{ToolTypeText, "Types text into a specified input field.", TypeTextArgs{}},
	{ToolPressKey, "Presses a keyboard key on the page or on a specific element.", PressKeyArgs{}},
	{ToolOpenApplication, "Opens a known web application in a new tab.", OpenApplicationArgs{}},
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
)

func toolSchemas() map[string]*jsonschema.Schema {
	schemasOnce.Do(func() {
		reflector := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
		schemas = make(map[string]*jsonschema.Schema, len(toolSpecs))
		for _, spec := range toolSpecs {
			schema := reflector.Reflect(spec.args)
			schema.Description = spec.description
			schemas[spec.name] = schema
		}
		if app, ok := schemas[ToolOpenApplication].Properties.Get("appName"); ok {
			for _, name := range Applications() {
				app.Enum = append(app.Enum, name)
			}
		}
	})
	return schemas
}

// Declarations returns the tool vocabulary in the form the model expects
func Declarations() []*genai.FunctionDeclaration {
	all := toolSchemas()
	decls := make([]*genai.FunctionDeclaration, 0, len(toolSpecs))
	for _, spec := range toolSpecs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.name,
			Description: spec.description,
			Parameters:  toGenaiSchema(all[spec.name]),
		})
	}
	return decls
}

func requiredArgs(tool string) []string {
	if schema, ok := toolSchemas()[tool]; ok {
		return schema.Required
	}
	return nil
}

func toGenaiSchema(s *jsonschema.Schema) *genai.Schema {
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Required:    s.Required,
	}
	for _, v := range s.Enum {
		out.Enum = append(out.Enum, fmt.Sprint(v))
	}
	if s.Properties != nil && s.Properties.Len() > 0 {
		out.Properties = make(map[string]*genai.Schema, s.Properties.Len())
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			out.Properties[pair.Key] = toGenaiSchema(pair.Value)
			out.PropertyOrdering = append(out.PropertyOrdering, pair.Key)
		}
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items)
	}
	return out
}
