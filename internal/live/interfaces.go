package live

import (
	"context"
	"image"

	"google.golang.org/genai"

	"github.com/lexiqai/jarvis-gateway/internal/audio"
	"github.com/lexiqai/jarvis-gateway/internal/browser"
)

// Callbacks is the host's view of a session. Every field is optional. Callbacks are
// delivered one at a time, in the order the underlying state changes happened, and
// never while the session holds its internal lock, so they may call Start or Stop.
// A model message with a video prompt is held until generation finishes, so it can
// follow messages from later turns.
type Callbacks struct {
	OnStatusChange     func(Status)
	OnUserTranscript   func(text string)
	OnJarvisTranscript func(text string)
	OnMessage          func(Message)
	OnError            func(message string)
}

// Credentials provides the access credential for the model
type Credentials interface {
	HasCredential() bool
	// PromptForCredential asks the user for a credential. It fails if the user cancels.
	PromptForCredential(ctx context.Context) error
}

// ConnectConfig is the setup sent when opening a realtime connection
type ConnectConfig struct {
	Model             string
	SystemInstruction string
	Tools             []*genai.FunctionDeclaration
}

// FunctionCall is one tool invocation requested by the model
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolCall groups the function calls of one server event
type ToolCall struct {
	FunctionCalls []FunctionCall
}

// ServerMessage is one event received on the realtime connection
type ServerMessage struct {
	ToolCall         *ToolCall
	InputTranscript  string
	OutputTranscript string
	// Audio holds base64 encoded PCM chunks in arrival order
	Audio        []string
	Interrupted  bool
	TurnComplete bool
}

// ConnHandler receives connection events. OnMessage calls are sequential.
type ConnHandler struct {
	OnOpen    func()
	OnMessage func(ServerMessage)
	OnError   func(error)
	OnClose   func()
}

// Conn is an open realtime connection
type Conn interface {
	SendAudio(blob audio.Blob) error
	SendImage(blob audio.Blob) error
	SendToolResult(id, name string, result browser.Result) error
	Close() error
}

// Dialer opens realtime connections. Dial may return before the connection is open;
// OnOpen signals readiness.
type Dialer interface {
	Dial(ctx context.Context, cfg ConnectConfig, handler ConnHandler) (Conn, error)
}

// MediaDevices opens the audio contexts and the capture stream
type MediaDevices interface {
	OpenInput(sampleRate int) (InputContext, error)
	OpenOutput(sampleRate int) (OutputContext, error)
	Acquire(ctx context.Context, input InputContext) (Capture, error)
}

// InputContext processes captured audio at a fixed sample rate
type InputContext interface {
	// Process feeds capture through a node that delivers frames of frameSize samples
	Process(capture Capture, frameSize int, onFrame func(samples []float32)) (ProcessingNode, error)
	Close() error
}

// ProcessingNode is a running capture pipeline
type ProcessingNode interface {
	Disconnect() error
}

// Capture is an acquired microphone and camera stream
type Capture interface {
	// Frames returns the camera feed, or nil when the capture has no video
	Frames() FrameSource
	Stop() error
}

// FrameSource yields the current camera frame. A nil image means no frame is ready yet.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
}

// OutputContext plays buffers on a shared clock measured in seconds
type OutputContext interface {
	CurrentTime() float64
	// Schedule starts buf at the given clock time. onEnded is called asynchronously
	// after natural completion and is not called for a stopped source.
	Schedule(buf *audio.Buffer, at float64, onEnded func()) (PlaybackSource, error)
	Close() error
}

// PlaybackSource is one scheduled buffer
type PlaybackSource interface {
	Stop()
}

// ToolExecutor runs a tool call and never fails past its boundary
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) browser.Result
}

// VideoGenerator turns a prompt into a playable video URL
type VideoGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
