package genailive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/MrWong99/kisanlive/pkg/provider/live"
)

// fakeSession feeds scripted messages to conn and records sends.
type fakeSession struct {
	msgs chan *genai.LiveServerMessage
	errs chan error

	mu     sync.Mutex
	sent   []genai.LiveRealtimeInput
	closed bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		msgs: make(chan *genai.LiveServerMessage, 8),
		errs: make(chan error, 1),
	}
}

func (f *fakeSession) SendRealtimeInput(in genai.LiveRealtimeInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, in)
	return nil
}

func (f *fakeSession) Receive() (*genai.LiveServerMessage, error) {
	select {
	case m := <-f.msgs:
		return m, nil
	case err := <-f.errs:
		return nil, err
	}
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.errs <- errors.New("use of closed network connection")
	}
	return nil
}

func recv(t *testing.T, c *conn) (live.Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		return ev, ok
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
		return nil, false
	}
}

func TestTranslate(t *testing.T) {
	t.Parallel()
	msg := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			InputTranscription:  &genai.Transcription{Text: "lo farmer"},
			OutputTranscription: &genai.Transcription{Text: "Namaste"},
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{Text: "ignored"},
				{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{1, 0}}},
			}},
			Interrupted:  true,
			TurnComplete: true,
		},
	}
	got := Translate(msg)
	want := []live.Event{
		live.TranscriptFragment{Role: live.RoleUser, Text: "lo farmer"},
		live.TranscriptFragment{Role: live.RoleModel, Text: "Namaste"},
		live.Interrupted{},
		live.AudioPayload{MIMEType: "audio/pcm;rate=24000", Data: []byte{1, 0}},
		live.TurnComplete{},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %#v", len(got), len(want), got)
	}
	for i := range want {
		switch w := want[i].(type) {
		case live.AudioPayload:
			g, ok := got[i].(live.AudioPayload)
			if !ok || g.MIMEType != w.MIMEType || string(g.Data) != string(w.Data) {
				t.Errorf("event %d = %#v, want %#v", i, got[i], w)
			}
		default:
			if got[i] != want[i] {
				t.Errorf("event %d = %#v, want %#v", i, got[i], want[i])
			}
		}
	}

	if evs := Translate(&genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}}); len(evs) != 1 || evs[0] != (live.Opened{}) {
		t.Errorf("setupComplete translated to %#v", evs)
	}
	if evs := Translate(nil); evs != nil {
		t.Errorf("nil message translated to %#v", evs)
	}
}

func TestConnectConfig(t *testing.T) {
	t.Parallel()
	cfg := ConnectConfig(live.SessionConfig{
		Instructions:       "Advise on crops.",
		InputTranscription: true,
	})
	if len(cfg.ResponseModalities) != 1 || cfg.ResponseModalities[0] != genai.ModalityAudio {
		t.Errorf("modalities = %v", cfg.ResponseModalities)
	}
	if v := cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; v != live.DefaultVoice {
		t.Errorf("voice = %q", v)
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "Advise on crops." {
		t.Errorf("system instruction = %+v", cfg.SystemInstruction)
	}
	if cfg.InputAudioTranscription == nil {
		t.Error("expected input transcription")
	}
	if cfg.OutputAudioTranscription != nil {
		t.Error("output transcription should be off")
	}
}

func TestConn_EventsAndSend(t *testing.T) {
	t.Parallel()
	fs := newFakeSession()
	c := newConn(fs)
	defer c.Close()

	fs.msgs <- &genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}}
	if ev, _ := recv(t, c); ev != (live.Opened{}) {
		t.Fatalf("first event = %#v", ev)
	}

	if err := c.SendRealtimeInput(context.Background(), live.Blob{MIMEType: "audio/pcm;rate=16000", Data: []byte{7, 0}}); err != nil {
		t.Fatalf("SendRealtimeInput: %v", err)
	}
	fs.mu.Lock()
	sent := fs.sent
	fs.mu.Unlock()
	if len(sent) != 1 || sent[0].Audio == nil || sent[0].Audio.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("sent = %#v", sent)
	}
}

func TestConn_RemoteCloseAndError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		err    error
		closed bool
	}{
		{"normal closure", &websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"}, true},
		{"going away", &websocket.CloseError{Code: websocket.CloseGoingAway}, true},
		{"abnormal", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, false},
		{"network", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fs := newFakeSession()
			c := newConn(fs)
			defer c.Close()

			fs.errs <- tt.err
			ev, _ := recv(t, c)
			_, isClosed := ev.(live.Closed)
			_, isErr := ev.(live.Errored)
			if tt.closed && !isClosed {
				t.Errorf("event = %#v, want live.Closed", ev)
			}
			if !tt.closed && !isErr {
				t.Errorf("event = %#v, want live.Errored", ev)
			}
			if _, open := recv(t, c); open {
				t.Error("expected channel to close after terminal event")
			}
		})
	}
}

func TestConn_LocalClose(t *testing.T) {
	t.Parallel()
	fs := newFakeSession()
	c := newConn(fs)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if ev, open := recv(t, c); open {
		t.Errorf("unexpected event after local close: %#v", ev)
	}
	if err := c.SendRealtimeInput(context.Background(), live.Blob{}); !errors.Is(err, live.ErrClosed) {
		t.Errorf("send after close: err = %v", err)
	}
}

func TestProvider_ClientCreationRetriesAfterFailure(t *testing.T) {
	t.Parallel()

	p := New("key")
	want := &genai.Client{}
	calls := 0
	p.newClient = func(ctx context.Context, cfg *genai.ClientConfig) (*genai.Client, error) {
		calls++
		if cfg.APIKey != "key" {
			t.Errorf("APIKey = %q, want key", cfg.APIKey)
		}
		if calls == 1 {
			return nil, context.Canceled
		}
		return want, nil
	}

	if _, err := p.sdkClient(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("first sdkClient = %v, want context.Canceled", err)
	}
	for range 2 {
		got, err := p.sdkClient(context.Background())
		if err != nil {
			t.Fatalf("sdkClient: %v", err)
		}
		if got != want {
			t.Error("sdkClient returned a different client")
		}
	}
	if calls != 2 {
		t.Errorf("newClient called %d times, want 2", calls)
	}
}
