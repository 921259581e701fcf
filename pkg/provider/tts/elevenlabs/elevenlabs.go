// Package elevenlabs streams speech synthesis from the ElevenLabs
// stream-input WebSocket API. Text fragments are forwarded as they arrive
// and PCM frames come back incrementally, so the playback channel can start
// speaking before the full reply has been generated.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"github.com/wellbot-ai/wellbot/pkg/provider/tts"
)

const (
	streamURLFmt = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s"
	voicesURL    = "https://api.elevenlabs.io/v1/voices"

	defaultModel  = "eleven_flash_v2_5"
	defaultFormat = "pcm_16000"

	// audioBuffer bounds how far synthesis may run ahead of playback.
	audioBuffer = 256
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "pcm_16000", "pcm_24000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.format = format
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey string
	model  string
	format string
	client *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey: apiKey,
		model:  defaultModel,
		format: defaultFormat,
		client: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- wire frames ----

// outboundFrame is the JSON payload sent over the WebSocket. The first frame
// of a stream carries the API key and output format; later frames carry only
// text, and an empty text value tells ElevenLabs to flush.
type outboundFrame struct {
	Text          string  `json:"text"`
	VoiceSettings *tuning `json:"voice_settings,omitempty"`
	XiAPIKey      string  `json:"xi_api_key,omitempty"`
	OutputFormat  string  `json:"output_format,omitempty"`
}

// tuning mirrors the ElevenLabs voice_settings object.
type tuning struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// inboundFrame is a message received from ElevenLabs over the WebSocket.
type inboundFrame struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// defaultTuning is the voice_settings block sent with the handshake and the
// first text fragment of each stream.
func defaultTuning() *tuning {
	return &tuning{Stability: 0.5, SimilarityBoost: 0.75}
}

// streamURL builds the stream-input WebSocket URL for a voice and model.
func streamURL(voiceID, model string) string {
	return fmt.Sprintf(streamURLFmt, voiceID, model)
}

// encodeFrame marshals an outbound text fragment. An empty text with no
// settings produces the flush command.
func encodeFrame(text string, vs *tuning) ([]byte, error) {
	return json.Marshal(outboundFrame{Text: text, VoiceSettings: vs})
}

// decodeAudio extracts the PCM payload from a raw WebSocket message.
// Frames without audio (acks, errors, final markers) return ok=false.
func decodeAudio(msg []byte) ([]byte, bool) {
	var frame inboundFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, false
	}
	if frame.Audio == "" {
		return nil, false
	}
	pcm, err := base64.StdEncoding.DecodeString(frame.Audio)
	if err != nil {
		return nil, false
	}
	return pcm, true
}

// ---- streaming session ----

// synth is one live synthesis stream over a WebSocket connection.
type synth struct {
	conn *websocket.Conn
	out  chan []byte
}

// SynthesizeStream opens a WebSocket to ElevenLabs for the given voice, pipes
// text fragments from the text channel, and returns a channel of raw PCM
// chunks. The audio channel is closed when synthesis completes or ctx is
// cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, streamURL(voice.ID, p.model), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	s := &synth{
		conn: conn,
		out:  make(chan []byte, audioBuffer),
	}
	if err := s.handshake(ctx, p.apiKey, p.format); err != nil {
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, err
	}

	go s.run(ctx, text)
	return s.out, nil
}

// handshake sends the opening frame that authenticates the stream and pins
// the output format. ElevenLabs requires a non-empty first text value.
func (s *synth) handshake(ctx context.Context, apiKey, format string) error {
	open := outboundFrame{
		Text:          " ",
		VoiceSettings: defaultTuning(),
		XiAPIKey:      apiKey,
		OutputFormat:  format,
	}
	payload, _ := json.Marshal(open)
	if err := s.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("elevenlabs: handshake: %w", err)
	}
	return nil
}

// run forwards text fragments until the channel closes, then flushes and
// waits for the reader to drain the remaining audio.
func (s *synth) run(ctx context.Context, text <-chan string) {
	defer close(s.out)
	defer s.conn.Close(websocket.StatusNormalClosure, "done")

	readDone := make(chan struct{})
	go s.readLoop(ctx, readDone)

	// Voice settings accompany only the first fragment.
	vs := defaultTuning()
	for {
		select {
		case fragment, ok := <-text:
			if !ok {
				flush, _ := encodeFrame("", nil)
				_ = s.conn.Write(ctx, websocket.MessageText, flush)
				<-readDone
				return
			}
			if fragment == "" {
				continue
			}
			payload, err := encodeFrame(fragment, vs)
			if err != nil {
				return
			}
			vs = nil
			if err := s.conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readLoop decodes inbound frames and delivers PCM to the output channel.
func (s *synth) readLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		pcm, ok := decodeAudio(msg)
		if !ok {
			continue
		}
		select {
		case s.out <- pcm:
		case <-ctx.Done():
			return
		}
	}
}

// ---- voice catalogue ----

// voiceCatalog is the top-level response from GET /v1/voices.
type voiceCatalog struct {
	Voices []catalogEntry `json:"voices"`
}

// catalogEntry is a single voice in the ElevenLabs catalogue.
type catalogEntry struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// profile converts a catalogue entry into the provider-neutral form, folding
// the category into the label metadata.
func (e catalogEntry) profile() tts.VoiceProfile {
	meta := make(map[string]string, len(e.Labels)+1)
	for k, v := range e.Labels {
		meta[k] = v
	}
	if e.Category != "" {
		meta["category"] = e.Category
	}
	return tts.VoiceProfile{
		ID:       e.VoiceID,
		Name:     e.Name,
		Provider: "elevenlabs",
		Metadata: meta,
	}
}

// decodeVoices parses a /v1/voices response body into voice profiles.
func decodeVoices(data []byte) ([]tts.VoiceProfile, error) {
	var cat voiceCatalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, err
	}
	profiles := make([]tts.VoiceProfile, 0, len(cat.Voices))
	for _, e := range cat.Voices {
		profiles = append(profiles, e.profile())
	}
	return profiles, nil
}

// ListVoices returns the voices available to the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voicesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: read: %w", err)
	}
	profiles, err := decodeVoices(body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: decode: %w", err)
	}
	return profiles, nil
}
