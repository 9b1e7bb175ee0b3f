package recognizer

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const streamSampleRate = 16000

// StreamConfig configures the websocket streaming backend.
type StreamConfig struct {
	// URL of the transcription server, ws:// or wss://.
	URL string
	// Chunk is how much audio is batched per frame. Default 500ms.
	Chunk time.Duration
}

// Stream talks to a self-hosted streaming transcription server over a
// websocket. The server pushes rolling transcripts with isFinal
// markers, so interim hypotheses arrive while the user is still
// speaking.
type Stream struct {
	url   string
	chunk time.Duration
}

// NewStream creates the websocket streaming provider.
func NewStream(cfg StreamConfig) *Stream {
	if cfg.Chunk <= 0 {
		cfg.Chunk = 500 * time.Millisecond
	}
	return &Stream{url: cfg.URL, chunk: cfg.Chunk}
}

func (s *Stream) Name() string        { return "stream" }
func (s *Stream) DisplayName() string { return "Streaming server" }
func (s *Stream) Available() bool     { return s.url != "" }

func (s *Stream) NewSession(cfg SessionConfig) (Session, error) {
	if !s.Available() {
		return nil, fmt.Errorf("stream: %w", ErrUnavailable)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	return &streamSession{
		cfg:     cfg,
		url:     s.url,
		chunk:   s.chunk,
		audio:   make(chan []float32, audioQueueDepth),
		results: make(chan Result, 16),
		done:    make(chan struct{}),
	}, nil
}

// streamMessage is the wire format in both directions.
type streamMessage struct {
	Type       string `json:"type"`
	Data       string `json:"data,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Sequence   int    `json:"sequence,omitempty"`
	Language   string `json:"language,omitempty"`
	Text       string `json:"text,omitempty"`
	FullText   string `json:"fullText,omitempty"`
	IsFinal    bool   `json:"isFinal,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

type streamSession struct {
	cfg   SessionConfig
	url   string
	chunk time.Duration

	audio   chan []float32
	results chan Result
	done    chan struct{}

	mu        sync.Mutex
	started   bool
	stopped   bool
	conn      *websocket.Conn
	finalText string
}

func (s *streamSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSessionClosed
	}
	if s.started {
		return ErrSessionStarted
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}

	lang := s.cfg.Language
	if lang == "auto" {
		lang = ""
	}
	if err := conn.WriteJSON(streamMessage{Type: "start", Language: lang}); err != nil {
		conn.Close()
		return fmt.Errorf("send start: %w", err)
	}

	s.conn = conn
	s.started = true
	go s.writeLoop()
	go s.readLoop()
	return nil
}

// WriteSamples queues a batch for upload. Never blocks; drops when the
// queue is full.
func (s *streamSession) WriteSamples(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return
	}
	batch := make([]float32, len(samples))
	copy(batch, samples)
	select {
	case s.audio <- batch:
	default:
	}
}

func (s *streamSession) Results() <-chan Result {
	return s.results
}

// Stop flushes pending audio, tells the server to finish, and waits
// for the reader to drain. Safe to call more than once.
func (s *streamSession) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	if !s.started {
		close(s.results)
		close(s.done)
		s.mu.Unlock()
		return nil
	}
	close(s.audio)
	conn := s.conn
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-time.After(3 * time.Second):
		// The server never acknowledged; force the reader out.
		conn.Close()
		<-s.done
	}
	return nil
}

func (s *streamSession) writeLoop() {
	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	chunkSamples := int(s.chunk * time.Duration(s.cfg.SampleRate) / time.Second)
	buf := make([]float32, 0, chunkSamples*2)
	seq := 0

	flush := func() bool {
		if len(buf) == 0 {
			return true
		}
		pcm := Resample(buf, s.cfg.SampleRate, streamSampleRate)
		msg := streamMessage{
			Type:       "chunk",
			Data:       base64.StdEncoding.EncodeToString(pcm16Bytes(pcm)),
			MimeType:   "audio/pcm16",
			SampleRate: streamSampleRate,
			Sequence:   seq,
		}
		seq++
		buf = buf[:0]
		return s.writeJSON(msg) == nil
	}

	for {
		select {
		case batch, ok := <-s.audio:
			if !ok {
				flush()
				s.writeJSON(streamMessage{Type: "stop"})
				return
			}
			buf = append(buf, batch...)
			if len(buf) >= chunkSamples {
				if !flush() {
					return
				}
			}
		case <-ping.C:
			if s.writeJSON(streamMessage{Type: "ping"}) != nil {
				return
			}
		}
	}
}

func (s *streamSession) writeJSON(msg streamMessage) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrSessionClosed
	}
	if err := conn.WriteJSON(msg); err != nil {
		// Closing the connection forces the read loop to exit too.
		conn.Close()
		return err
	}
	return nil
}

func (s *streamSession) readLoop() {
	defer close(s.done)
	defer close(s.results)
	for {
		var msg streamMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if !s.isStopped() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emit(Result{Err: fmt.Errorf("stream read: %w", err)})
			}
			return
		}
		switch msg.Type {
		case "transcript":
			s.emit(s.toResult(msg))
		case "error":
			s.emit(Result{Err: fmt.Errorf("stream server: %s", msg.Detail)})
		case "stopped":
			return
		}
	}
}

// emit delivers a result without ever blocking the read loop. Every
// result is a complete snapshot, so when the consumer lags the oldest
// pending one is dropped in favor of the newest.
func (s *streamSession) emit(r Result) {
	for {
		select {
		case s.results <- r:
			return
		default:
			select {
			case <-s.results:
			default:
			}
		}
	}
}

// toResult maps a rolling server transcript onto the segment model.
// fullText always carries the whole session transcript; isFinal marks
// the point up to which the server will no longer revise.
func (s *streamSession) toResult(msg streamMessage) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	full := msg.FullText
	if full == "" {
		full = msg.Text
	}
	if msg.IsFinal {
		s.finalText = full
		return Result{Segments: []Segment{{Text: full, Final: true}}}
	}
	if s.finalText != "" && strings.HasPrefix(full, s.finalText) {
		segs := []Segment{{Text: s.finalText, Final: true}}
		if rest := full[len(s.finalText):]; rest != "" {
			segs = append(segs, Segment{Text: rest})
		}
		return Result{Segments: segs}
	}
	// The server revised already-seen text; publish it all as interim.
	return Result{Segments: []Segment{{Text: full}}}
}

func (s *streamSession) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// pcm16Bytes converts float32 samples to little-endian 16-bit PCM.
func pcm16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}
	return out
}
