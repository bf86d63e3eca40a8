package audio

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestPCM16RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.25, -1}

	out, err := DecodeFrame(EncodeFrame(in))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out, cmpopts.EquateApprox(0, 1.0/32768)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodePCM16Clamps(t *testing.T) {
	raw := EncodePCM16([]float32{2, -2})
	got, err := DecodePCM16(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] <= 0.99 || got[1] != -1 {
		t.Errorf("clamped samples = %v", got)
	}
}

func TestDecodePCM16OddLength(t *testing.T) {
	if _, err := DecodePCM16([]byte{1, 2, 3}); err != ErrOddLength {
		t.Errorf("err = %v, want ErrOddLength", err)
	}
}

func TestDuration(t *testing.T) {
	if got := Duration(24000, PlaybackRate); got != time.Second {
		t.Errorf("Duration() = %v", got)
	}
	if got := Duration(8000, CaptureRate); got != 500*time.Millisecond {
		t.Errorf("Duration() = %v", got)
	}
}

func TestResample(t *testing.T) {
	in := make([]float32, 480)
	for i := range in {
		in[i] = 0.1
	}

	out := Resample(in, 48000, 16000)
	if len(out) != 160 {
		t.Fatalf("len = %d, want 160", len(out))
	}
	for _, s := range out {
		if s < 0.0999 || s > 0.1001 {
			t.Fatalf("sample %v drifted", s)
		}
	}
}

func TestResamplerChunkedMatchesWhole(t *testing.T) {
	in := make([]float32, 1000)
	for i := range in {
		in[i] = float32(i)
	}

	tests := []struct {
		name     string
		from, to int
	}{
		{name: "down 48k to 16k", from: 48000, to: 16000},
		{name: "down 44.1k to 16k", from: 44100, to: 16000},
		{name: "up 16k to 24k", from: 16000, to: 24000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := Resample(in, tt.from, tt.to)

			r := NewResampler(tt.from, tt.to)
			var got []float32
			for start := 0; start < len(in); start += 7 {
				end := min(start+7, len(in))
				got = append(got, r.Push(in[start:end])...)
			}

			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("chunked output differs (-whole +chunked):\n%s", diff)
			}
		})
	}
}

func TestResamplerKeepsRate(t *testing.T) {
	r := NewResampler(48000, 16000)
	total := 0
	for i := 0; i < 375; i++ {
		total += len(r.Push(make([]float32, 128)))
	}
	if total != 16000 {
		t.Errorf("one second at 48kHz gave %d samples at 16kHz, want 16000", total)
	}
}

func TestFramer(t *testing.T) {
	f := NewFramer(4)

	if frames := f.Push([]float32{1, 2, 3}); len(frames) != 0 {
		t.Fatalf("got %d frames early", len(frames))
	}
	frames := f.Push([]float32{4, 5, 6, 7, 8, 9})
	want := [][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}
	if diff := cmp.Diff(want, frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	if f.Pending() != 1 {
		t.Errorf("Pending() = %d", f.Pending())
	}
}

func TestPickFormat(t *testing.T) {
	tests := []struct {
		name      string
		supported map[string]bool
		want      string
	}{
		{name: "Webm", supported: map[string]bool{"audio/webm": true, "audio/mp4": true}, want: "audio/webm"},
		{name: "Mp4", supported: map[string]bool{"audio/mp4": true}, want: "audio/mp4"},
		{name: "Fallback", supported: map[string]bool{}, want: "audio/aac"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PickFormat(RecordingPreference, func(m string) bool { return tt.supported[m] })
			if got != tt.want {
				t.Errorf("PickFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectAudioFormat(t *testing.T) {
	if got := DetectAudioFormat("audio/webm;codecs=opus", ""); got != "webm" {
		t.Errorf("got %q", got)
	}
	if got := DetectAudioFormat("", "voice.m4a"); got != "m4a" {
		t.Errorf("got %q", got)
	}
	if got := ContentType("aac"); got != "audio/aac" {
		t.Errorf("got %q", got)
	}
}
