package live

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lexiqai/jarvis-gateway/internal/browser"
	"github.com/lexiqai/jarvis-gateway/internal/tags"
)

// handleMessage applies one server event. Events for a stale run, or arriving
// while the session is OFF or in ERROR, are dropped.
func (s *Session) handleMessage(r *run, msg ServerMessage) {
	s.mu.Lock()
	accepting := s.current(r)
	s.mu.Unlock()
	if !accepting {
		return
	}

	if msg.ToolCall != nil {
		if !s.handleToolCall(r, msg.ToolCall) {
			return
		}
	}
	if msg.Interrupted {
		s.interrupt(r)
	}
	if msg.OutputTranscript != "" || msg.InputTranscript != "" {
		s.appendTranscripts(r, msg.InputTranscript, msg.OutputTranscript)
	}
	for _, chunk := range msg.Audio {
		if chunk != "" {
			s.playAudio(r, chunk)
		}
	}
	if msg.TurnComplete {
		s.completeTurn(r)
	}
}

// handleToolCall runs each requested function and returns its result to the model.
// It reports false when the session was failed or stopped on the way.
func (s *Session) handleToolCall(r *run, call *ToolCall) bool {
	for _, fc := range call.FunctionCalls {
		conn, err := r.conn.wait(r.ctx)
		if err != nil {
			s.fail(r, fmt.Sprintf("Tool call %q could not be answered: %v (%v)", fc.Name, ErrDesynchronized, err))
			return false
		}

		s.mu.Lock()
		accepting := s.current(r)
		s.mu.Unlock()
		if !accepting {
			return false
		}

		result := s.executeTool(r, fc)
		if err := conn.SendToolResult(fc.ID, fc.Name, result); err != nil {
			r.logger.Warn().Err(err).Str("tool", fc.Name).Str("call_id", fc.ID).Msg("Failed to send tool result")
		}

		s.mu.Lock()
		s.events.message(Message{
			ID:     "action-" + fc.ID,
			Sender: SenderSystemAction,
			Text:   result.Message,
		})
		s.mu.Unlock()
		s.events.flush()
	}
	return true
}

func (s *Session) executeTool(r *run, fc FunctionCall) browser.Result {
	ctx, span := tracer.Start(r.ctx, "live.tool_call", trace.WithAttributes(
		attribute.String("tool.name", fc.Name),
		attribute.String("tool.call_id", fc.ID),
	))
	defer span.End()

	start := time.Now()
	var result browser.Result
	if s.deps.Tools == nil {
		result = browser.Fail("Unknown function: " + fc.Name)
	} else {
		result = s.deps.Tools.Execute(ctx, fc.Name, fc.Args)
	}
	elapsed := time.Since(start)

	span.SetAttributes(attribute.Bool("tool.success", result.Success))
	if !result.Success {
		span.SetStatus(codes.Error, result.Message)
	}
	r.metrics.RecordToolCall(fc.Name, result.Success, elapsed)
	r.logger.Info().
		Str("tool", fc.Name).
		Bool("success", result.Success).
		Dur("latency", elapsed).
		Msg("Tool call executed")
	return result
}

// appendTranscripts extends the turn accumulators and reports the running text
func (s *Session) appendTranscripts(r *run, input, output string) {
	s.mu.Lock()
	if !s.current(r) {
		s.mu.Unlock()
		return
	}
	if output != "" {
		r.modelText.WriteString(output)
		s.events.jarvisTranscript(r.modelText.String())
	}
	if input != "" {
		r.userText.WriteString(input)
		s.events.userTranscript(r.userText.String())
	}
	s.mu.Unlock()
	s.events.flush()
}

// completeTurn turns the accumulated transcripts into chat messages and resets
// the accumulators
func (s *Session) completeTurn(r *run) {
	s.mu.Lock()
	if !s.current(r) {
		s.mu.Unlock()
		return
	}

	userText := strings.TrimSpace(r.userText.String())
	modelText := r.modelText.String()
	r.userText.Reset()
	r.modelText.Reset()

	if userText != "" {
		s.events.message(Message{ID: uuid.NewString(), Sender: SenderUser, Text: userText})
	}

	var videoPrompt string
	var reply Message
	if strings.TrimSpace(modelText) != "" {
		parsed := tags.Parse(modelText)
		reply = s.modelMessage(r, parsed)
		if parsed.VideoPrompt == "" {
			s.events.message(reply)
		} else {
			videoPrompt = parsed.VideoPrompt
		}
	}

	s.events.userTranscript("")
	s.events.jarvisTranscript("")
	if len(r.pending) == 0 {
		s.setStatusLocked(StatusListening)
	}
	s.mu.Unlock()
	s.events.flush()

	r.metrics.RecordTurn()
	if videoPrompt != "" {
		go s.attachVideo(r, reply, videoPrompt)
	}
}

func (s *Session) modelMessage(r *run, parsed tags.Result) Message {
	msg := Message{ID: uuid.NewString(), Sender: SenderModel}
	if err := copier.CopyWithOption(&msg, &parsed, copier.Option{DeepCopy: true}); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to copy parsed directives onto message")
	}
	msg.Text = parsed.CleanedText
	return msg
}

// attachVideo runs the external video generation for a finished turn and emits the
// model message once it has a video or a failure notice. Audio keeps streaming
// meanwhile. Stop cancels the job and its message is dropped.
func (s *Session) attachVideo(r *run, msg Message, prompt string) {
	ctx, span := tracer.Start(r.ctx, "live.video_generation")
	defer span.End()

	var url string
	err := errors.New("video generation is not configured")
	if s.deps.Video != nil {
		url, err = s.deps.Video.Generate(ctx, prompt)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn().Err(err).Msg("Video generation failed")

		var info tags.SystemInfo
		if msg.SystemInfo != nil {
			info = *msg.SystemInfo
		}
		info.SystemFailure = "Video generation failed: " + err.Error()
		msg.SystemInfo = &info
	} else {
		msg.VideoURL = url
		r.logger.Info().Msg("Video generated")
	}

	s.mu.Lock()
	if !s.current(r) {
		s.mu.Unlock()
		r.logger.Info().Str("message_id", msg.ID).Msg("Dropping video message from stopped session")
		return
	}
	s.events.message(msg)
	s.mu.Unlock()
	s.events.flush()
}
