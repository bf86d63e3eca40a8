package live

import (
	"fmt"
	"strings"
)

// SystemPrompt is the instruction the endpoint receives for a call with partnerName
func SystemPrompt(partnerName string) string {
	return fmt.Sprintf("You are in a real-time call with %s. Be conversational, concise, and helpful.", partnerName)
}

// ClientMessage is one frame sent to the endpoint. Exactly one field is set.
type ClientMessage struct {
	Setup         *Setup         `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
}

type Setup struct {
	Model             string            `json:"model"`
	GenerationConfig  GenerationConfig  `json:"generationConfig"`
	SystemInstruction SystemInstruction `json:"systemInstruction"`
}

type GenerationConfig struct {
	ResponseModalities []string     `json:"responseModalities"`
	SpeechConfig       SpeechConfig `json:"speechConfig"`
}

type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type PrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type SystemInstruction struct {
	Parts []TextPart `json:"parts"`
}

type TextPart struct {
	Text string `json:"text"`
}

type RealtimeInput struct {
	MediaChunks []Blob `json:"mediaChunks"`
}

// Blob is base64 data labelled with its mime type
type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ServerMessage is one frame received from the endpoint
type ServerMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	GoAway        *GoAway        `json:"goAway,omitempty"`
}

type ServerContent struct {
	ModelTurn    *ModelTurn `json:"modelTurn,omitempty"`
	Interrupted  bool       `json:"interrupted,omitempty"`
	TurnComplete bool       `json:"turnComplete,omitempty"`
}

type ModelTurn struct {
	Parts []Part `json:"parts"`
}

type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

func newSetup(model, voice, partnerName string) ClientMessage {
	return ClientMessage{Setup: &Setup{
		Model: model,
		GenerationConfig: GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: SpeechConfig{
				VoiceConfig: VoiceConfig{PrebuiltVoiceConfig: PrebuiltVoice{VoiceName: voice}},
			},
		},
		SystemInstruction: SystemInstruction{
			Parts: []TextPart{{Text: SystemPrompt(partnerName)}},
		},
	}}
}

func newAudioInput(mimeType, data string) ClientMessage {
	return ClientMessage{RealtimeInput: &RealtimeInput{
		MediaChunks: []Blob{{MimeType: mimeType, Data: data}},
	}}
}

// audioParts returns the inline audio blobs of a model turn in order
func (c *ServerContent) audioParts() []Blob {
	if c == nil || c.ModelTurn == nil {
		return nil
	}
	var out []Blob
	for _, p := range c.ModelTurn.Parts {
		if p.InlineData != nil && strings.HasPrefix(p.InlineData.MimeType, "audio/") && p.InlineData.Data != "" {
			out = append(out, *p.InlineData)
		}
	}
	return out
}

// blobRate reads the rate parameter of an audio/pcm mime type
func blobRate(mimeType string, fallback int) int {
	for _, param := range strings.Split(mimeType, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || k != "rate" {
			continue
		}
		var rate int
		if _, err := fmt.Sscanf(v, "%d", &rate); err == nil && rate > 0 {
			return rate
		}
	}
	return fallback
}
