package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	opuscodec "github.com/jj11hh/opus"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Sentinel errors.
var (
	ErrNotReady = errors.New("client not ready")
	ErrClosed   = errors.New("client closed")
)

// Client owns one WebRTC call to the Realtime API: an outbound Opus
// audio track plus the oai-events data channel for transcription
// events.
type Client struct {
	opusEncoder *opuscodec.Encoder
	audioTrack  *webrtc.TrackLocalStaticSample
	opusBuffer  []byte

	mu     sync.Mutex
	closed bool

	apiKey         string
	tokenCfg       TokenConfig
	peerConnection *webrtc.PeerConnection
	dataChannel    *webrtc.DataChannel
	raw            chan []byte
	msgChan        chan Event
	errChan        chan error
	done           chan struct{}
}

// ClientConfig holds configuration for the client.
type ClientConfig struct {
	APIKey string
	Token  TokenConfig
}

// NewClient creates a WebRTC-based Realtime client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		apiKey:   cfg.APIKey,
		tokenCfg: cfg.Token,
		raw:      make(chan []byte, 100),
		msgChan:  make(chan Event, 100),
		errChan:  make(chan error, 1),
		done:     make(chan struct{}),
		// Max Opus packet size is typically 1275 bytes.
		opusBuffer: make([]byte, 1275),
	}
}

// Connect mints an ephemeral token, dials the peer connection, and
// completes the SDP exchange.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	token, err := CreateToken(ctx, c.apiKey, c.tokenCfg)
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	slog.Debug("realtime token minted", "expires", time.Unix(token.ExpiresAt, 0))

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return fmt.Errorf("register codecs: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		},
		"audio",
		"voicepad-audio",
	)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create audio track: %w", err)
	}
	if _, err = pc.AddTrack(audioTrack); err != nil {
		pc.Close()
		return fmt.Errorf("add audio track: %w", err)
	}

	opusEnc, err := opuscodec.NewEncoder(48000, 2, opuscodec.AppRestrictedLowdelay)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create opus encoder: %w", err)
	}

	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create data channel: %w", err)
	}

	c.mu.Lock()
	c.peerConnection = pc
	c.audioTrack = audioTrack
	c.opusEncoder = opusEnc
	c.dataChannel = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		slog.Debug("realtime data channel open")
	})
	dc.OnMessage(c.handleDataMessage)

	// Incoming audio is not used; drain it so the transport stays
	// healthy.
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed {
			select {
			case c.errChan <- fmt.Errorf("ice connection %s", state.String()):
			default:
			}
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	<-webrtc.GatheringCompletePromise(pc)

	answerSDP, err := ExchangeSDP(ctx, pc.LocalDescription().SDP, token.Value)
	if err != nil {
		return fmt.Errorf("exchange sdp: %w", err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	go c.forwardEvents()
	return nil
}

// handleDataMessage runs on the transport's callback goroutine; it only
// queues the payload. The raw queue is never closed, so a message
// arriving mid-Close cannot panic.
func (c *Client) handleDataMessage(msg webrtc.DataChannelMessage) {
	data := make([]byte, len(msg.Data))
	copy(data, msg.Data)
	select {
	case c.raw <- data:
	case <-c.done:
	default:
		slog.Warn("realtime raw queue full, dropping message")
	}
}

// forwardEvents parses queued payloads and delivers them. It is the
// sole owner of msgChan and closes it on the way out.
func (c *Client) forwardEvents() {
	defer close(c.msgChan)
	for {
		select {
		case <-c.done:
			return
		case data := <-c.raw:
			event, err := ParseEvent(data)
			if err != nil {
				slog.Warn("failed to parse realtime event", "error", err)
				continue
			}
			select {
			case c.msgChan <- event:
			case <-time.After(50 * time.Millisecond):
				slog.Warn("realtime event channel full", "type", event.eventType())
			}
		}
	}
}

// SendAudio encodes one Opus frame and writes it to the track. Samples
// must be stereo interleaved float32 at 48kHz in a valid Opus frame
// size, and calls must come from a single goroutine since the encode
// buffer is reused.
func (c *Client) SendAudio(samples []float32) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	track := c.audioTrack
	encoder := c.opusEncoder
	c.mu.Unlock()

	if track == nil || encoder == nil {
		return ErrNotReady
	}

	n, err := encoder.EncodeFloat32(samples, c.opusBuffer)
	if err != nil {
		return fmt.Errorf("opus encode: %w", err)
	}

	sample := media.Sample{
		Data:     c.opusBuffer[:n],
		Duration: time.Duration(len(samples)/2) * time.Second / 48000,
	}
	return track.WriteSample(sample)
}

// Messages returns the channel of parsed events. Closed by Close.
func (c *Client) Messages() <-chan Event {
	return c.msgChan
}

// Errors returns the channel of transport-level errors.
func (c *Client) Errors() <-chan error {
	return c.errChan
}

// Close hangs up. The event channel closes once the forward loop
// drains out. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	if c.dataChannel != nil {
		_ = c.dataChannel.Close()
	}
	if c.peerConnection != nil {
		_ = c.peerConnection.Close()
	}
	return nil
}
