package live

import (
	"bytes"
	"context"
	"image/jpeg"
	"time"

	"github.com/lexiqai/jarvis-gateway/internal/audio"
)

const jpegMIMEType = "image/jpeg"

// frameSampler pushes camera frames at a fixed rate while the session streams
type frameSampler struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Session) startFrameSampler(r *run, src FrameSource) *frameSampler {
	ctx, cancel := context.WithCancel(r.ctx)
	fs := &frameSampler{cancel: cancel, done: make(chan struct{})}
	interval := time.Duration(float64(time.Second) / s.cfg.FrameRate)

	go func() {
		defer close(fs.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sampleFrame(ctx, r, src)
			}
		}
	}()
	return fs
}

// Stop cancels the sampler and waits for an in-flight frame to finish
func (fs *frameSampler) Stop() {
	fs.cancel()
	<-fs.done
}

func (s *Session) sampleFrame(ctx context.Context, r *run, src FrameSource) {
	if _, ok := s.streamingConn(r); !ok {
		return
	}
	img, err := src.Frame(ctx)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Camera frame unavailable")
		return
	}
	if img == nil {
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.cfg.JPEGQuality}); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to encode camera frame")
		return
	}

	// status may have changed while the frame was captured
	conn, ok := s.streamingConn(r)
	if !ok {
		return
	}
	if err := conn.SendImage(audio.Blob{MIMEType: jpegMIMEType, Data: buf.Bytes()}); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to send camera frame")
		return
	}
	r.metrics.RecordVideoFrame()
}
