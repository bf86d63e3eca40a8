package live

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSetupMessageShape(t *testing.T) {
	raw, err := json.Marshal(newSetup("models/m", "Zephyr", "Rafi"))
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	_ = json.Unmarshal(raw, &got)

	want := map[string]any{
		"setup": map[string]any{
			"model": "models/m",
			"generationConfig": map[string]any{
				"responseModalities": []any{"AUDIO"},
				"speechConfig": map[string]any{
					"voiceConfig": map[string]any{
						"prebuiltVoiceConfig": map[string]any{"voiceName": "Zephyr"},
					},
				},
			},
			"systemInstruction": map[string]any{
				"parts": []any{map[string]any{
					"text": "You are in a real-time call with Rafi. Be conversational, concise, and helpful.",
				}},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("setup mismatch (-want +got):\n%s", diff)
	}
}

func TestServerContentAudioParts(t *testing.T) {
	const raw = `{"serverContent":{"modelTurn":{"parts":[
		{"text":"thinking"},
		{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AAAA"}},
		{"inlineData":{"mimeType":"image/png","data":"BBBB"}},
		{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"CCCC"}}
	]},"interrupted":true}}`

	var msg ServerMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatal(err)
	}

	var data []string
	for _, b := range msg.ServerContent.audioParts() {
		data = append(data, b.Data)
	}
	if diff := cmp.Diff([]string{"AAAA", "CCCC"}, data); diff != "" {
		t.Errorf("parts mismatch (-want +got):\n%s", diff)
	}
	if !msg.ServerContent.Interrupted {
		t.Error("interrupted flag lost")
	}
}

func TestBlobRate(t *testing.T) {
	tests := map[string]int{
		"audio/pcm;rate=24000":  24000,
		"audio/pcm; rate=16000": 16000,
		"audio/pcm":             24000,
		"audio/pcm;rate=bogus":  24000,
		"audio/pcm;channels=1":  24000,
	}
	for mime, want := range tests {
		if got := blobRate(mime, 24000); got != want {
			t.Errorf("blobRate(%q) = %d, want %d", mime, got, want)
		}
	}
}

func TestSystemPromptNamesPartner(t *testing.T) {
	if p := SystemPrompt("Nadia"); !strings.Contains(p, "with Nadia.") {
		t.Errorf("prompt = %q", p)
	}
}
