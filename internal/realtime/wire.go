package realtime

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"google.golang.org/genai"

	"github.com/lexiqai/jarvis-gateway/internal/audio"
	"github.com/lexiqai/jarvis-gateway/internal/browser"
	"github.com/lexiqai/jarvis-gateway/internal/live"
)

// Client frames

type clientMessage struct {
	Setup         *setup         `json:"setup,omitempty"`
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *toolResponse  `json:"toolResponse,omitempty"`
}

type setup struct {
	Model                    string             `json:"model"`
	GenerationConfig         generationConfig   `json:"generationConfig"`
	SystemInstruction        *genai.Content     `json:"systemInstruction,omitempty"`
	Tools                    []*genai.Tool      `json:"tools,omitempty"`
	InputAudioTranscription  *transcriptionSpec `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *transcriptionSpec `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []genai.Modality `json:"responseModalities"`
}

type transcriptionSpec struct{}

type realtimeInput struct {
	Audio *mediaBlob `json:"audio,omitempty"`
	Video *mediaBlob `json:"video,omitempty"`
}

type mediaBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Server frames

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	ToolCall      *toolCall        `json:"toolCall,omitempty"`
	GoAway        *goAway          `json:"goAway,omitempty"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string     `json:"text,omitempty"`
	InlineData *mediaBlob `json:"inlineData,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCall struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft"`
}

func newSetup(cfg live.ConnectConfig) *setup {
	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	s := &setup{
		Model:                    model,
		GenerationConfig:         generationConfig{ResponseModalities: []genai.Modality{genai.ModalityAudio}},
		InputAudioTranscription:  &transcriptionSpec{},
		OutputAudioTranscription: &transcriptionSpec{},
	}
	if cfg.SystemInstruction != "" {
		s.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if len(cfg.Tools) > 0 {
		s.Tools = []*genai.Tool{{FunctionDeclarations: cfg.Tools}}
	}
	return s
}

func audioInput(blob audio.Blob) clientMessage {
	return clientMessage{RealtimeInput: &realtimeInput{Audio: encodeBlob(blob)}}
}

func videoInput(blob audio.Blob) clientMessage {
	return clientMessage{RealtimeInput: &realtimeInput{Video: encodeBlob(blob)}}
}

func encodeBlob(blob audio.Blob) *mediaBlob {
	return &mediaBlob{MIMEType: blob.MIMEType, Data: base64.StdEncoding.EncodeToString(blob.Data)}
}

// toolResult wraps the executor result as {"result": "<json>"}
func toolResult(id, name string, result browser.Result) (clientMessage, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return clientMessage{}, err
	}
	return clientMessage{ToolResponse: &toolResponse{FunctionResponses: []functionResponse{{
		ID:       id,
		Name:     name,
		Response: map[string]any{"result": string(payload)},
	}}}}, nil
}

// toServerMessage converts a decoded frame into the session's event shape
func (m *serverMessage) toServerMessage() live.ServerMessage {
	var out live.ServerMessage
	if m.ToolCall != nil {
		tc := &live.ToolCall{}
		for _, fc := range m.ToolCall.FunctionCalls {
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			tc.FunctionCalls = append(tc.FunctionCalls, live.FunctionCall{ID: fc.ID, Name: fc.Name, Args: args})
		}
		out.ToolCall = tc
	}
	if c := m.ServerContent; c != nil {
		out.Interrupted = c.Interrupted
		out.TurnComplete = c.TurnComplete
		if c.InputTranscription != nil {
			out.InputTranscript = c.InputTranscription.Text
		}
		if c.OutputTranscription != nil {
			out.OutputTranscript = c.OutputTranscription.Text
		}
		if c.ModelTurn != nil {
			for _, p := range c.ModelTurn.Parts {
				if p.InlineData != nil && p.InlineData.Data != "" {
					out.Audio = append(out.Audio, p.InlineData.Data)
				}
			}
		}
	}
	return out
}

// empty reports whether the frame carries nothing the session acts on
func (m *serverMessage) empty() bool {
	return m.ToolCall == nil && m.ServerContent == nil
}
