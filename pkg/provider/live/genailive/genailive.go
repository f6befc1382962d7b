// Package genailive implements the live.Provider interface on top of the
// official Google Gen AI SDK (google.golang.org/genai) Live client.
//
// It is an alternative to the hand-written WebSocket provider in
// live/gemini; both speak the same BidiGenerateContent protocol. This one also
// works against Vertex AI when the client is configured for it.
package genailive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/MrWong99/kisanlive/pkg/provider/live"
)

var _ live.Provider = (*Provider)(nil)
var _ live.Conn = (*conn)(nil)

// DefaultModel is the native-audio model used when none is configured.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// session is the subset of *genai.Session used by conn.
type session interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithClientConfig replaces the SDK client configuration. The API key passed
// to New is used only when cfg.APIKey is empty.
func WithClientConfig(cfg genai.ClientConfig) Option {
	return func(p *Provider) { p.clientCfg = cfg }
}

// Provider implements live.Provider using the Gen AI SDK.
type Provider struct {
	model     string
	clientCfg genai.ClientConfig

	newClient func(context.Context, *genai.ClientConfig) (*genai.Client, error)

	mu     sync.Mutex
	client *genai.Client
}

// New creates a Provider for the Gemini API with the given key.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		model:     DefaultModel,
		newClient: genai.NewClient,
		clientCfg: genai.ClientConfig{
			Backend: genai.BackendGeminiAPI,
		},
	}
	for _, o := range opts {
		o(p)
	}
	if p.clientCfg.APIKey == "" {
		p.clientCfg.APIKey = apiKey
	}
	return p
}

// Name returns "genai-live".
func (p *Provider) Name() string { return "genai-live" }

// Capabilities returns static metadata about the provider.
func (p *Provider) Capabilities() live.Capabilities {
	return live.Capabilities{
		InputSampleRate:  16000,
		OutputSampleRate: 24000,
		Voices:           []string{"Zephyr", "Puck", "Charon", "Kore", "Fenrir", "Aoede"},
	}
}

// Connect opens a Live session. The SDK client is created lazily and reused
// once creation has succeeded.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Conn, error) {
	client, err := p.sdkClient(ctx)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = p.model
	}
	sess, err := client.Live.Connect(ctx, model, ConnectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("genailive: connect: %w", err)
	}
	return newConn(sess), nil
}

// sdkClient returns the shared SDK client, creating it if no earlier attempt
// succeeded. Failures are not cached: a cancelled ctx or a transient
// credentials error only affects the current call.
func (p *Provider) sdkClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	cfg := p.clientCfg
	client, err := p.newClient(ctx, &cfg)
	if err != nil {
		return nil, fmt.Errorf("genailive: create client: %w", err)
	}
	p.client = client
	return client, nil
}

// ConnectConfig translates a SessionConfig into the SDK's connect options.
func ConnectConfig(cfg live.SessionConfig) *genai.LiveConnectConfig {
	out := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.VoiceName()},
			},
			LanguageCode: cfg.Language,
		},
	}
	if cfg.Instructions != "" {
		out.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.Instructions}}}
	}
	if cfg.InputTranscription {
		out.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		out.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return out
}

// Translate maps one server message to zero or more events, in the order
// user transcript, model transcript, interruption, audio parts, turn complete.
func Translate(msg *genai.LiveServerMessage) []live.Event {
	if msg == nil {
		return nil
	}
	var events []live.Event
	if msg.SetupComplete != nil {
		events = append(events, live.Opened{})
	}
	sc := msg.ServerContent
	if sc == nil {
		return events
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		events = append(events, live.TranscriptFragment{Role: live.RoleUser, Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		events = append(events, live.TranscriptFragment{Role: live.RoleModel, Text: sc.OutputTranscription.Text})
	}
	if sc.Interrupted {
		events = append(events, live.Interrupted{})
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			events = append(events, live.AudioPayload{
				MIMEType: part.InlineData.MIMEType,
				Data:     part.InlineData.Data,
			})
		}
	}
	if sc.TurnComplete {
		events = append(events, live.TurnComplete{})
	}
	return events
}

// conn adapts a genai session to live.Conn.
type conn struct {
	sess   session
	events chan live.Event

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newConn(sess session) *conn {
	c := &conn{
		sess:   sess,
		events: make(chan live.Event, 64),
		done:   make(chan struct{}),
	}
	go c.receiveLoop()
	return c
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *conn) emit(ev live.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// receiveLoop owns the events channel and closes it when it exits.
func (c *conn) receiveLoop() {
	defer close(c.events)
	for {
		msg, err := c.sess.Receive()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.emit(classify(err))
			return
		}
		for _, ev := range Translate(msg) {
			if !c.emit(ev) {
				return
			}
		}
		if msg.GoAway != nil {
			slog.Debug("genailive: server announced disconnect")
		}
	}
}

// classify maps a receive error to a terminal event.
func classify(err error) live.Event {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return live.Closed{Reason: ce.Text}
		}
	}
	return live.Errored{Err: fmt.Errorf("genailive: receive: %w", err)}
}

// SendRealtimeInput forwards one audio chunk. The SDK write has no context
// parameter; ctx is only checked before sending.
func (c *conn) SendRealtimeInput(ctx context.Context, in live.Blob) error {
	if c.isClosed() {
		return live.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: in.MIMEType, Data: in.Data},
	})
	if err != nil {
		return fmt.Errorf("genailive: send: %w", err)
	}
	return nil
}

func (c *conn) Events() <-chan live.Event { return c.events }

// Close ends the session. Idempotent.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	return c.sess.Close()
}
