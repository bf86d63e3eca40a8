package audio

import (
	"path/filepath"
	"strings"
)

// DetectAudioFormat determines file extension based on Content-Type and filename
func DetectAudioFormat(contentType, filename string) string {
	// Priority 1: Trust filename extension
	if filename != "" {
		ext := strings.ToLower(filepath.Ext(filename))
		switch ext {
		case ".webm":
			return "webm"
		case ".m4a", ".mp4":
			return "m4a"
		case ".aac":
			return "aac"
		case ".mp3":
			return "mp3"
		case ".ogg", ".opus":
			return "ogg"
		case ".wav":
			return "wav"
		}
	}

	// Priority 2: Trust Content-Type
	switch {
	case strings.Contains(contentType, "webm"):
		return "webm"
	case strings.Contains(contentType, "aac"):
		return "aac"
	case strings.Contains(contentType, "mp4"):
		return "m4a"
	case strings.Contains(contentType, "mpeg"), strings.Contains(contentType, "mp3"):
		return "mp3"
	case strings.Contains(contentType, "ogg"):
		return "ogg"
	case strings.Contains(contentType, "wav"):
		return "wav"
	default:
		return "webm"
	}
}

// ContentType maps an audio format to its MIME type
func ContentType(audioFormat string) string {
	switch audioFormat {
	case "webm":
		return "audio/webm"
	case "m4a", "mp4":
		return "audio/mp4"
	case "aac":
		return "audio/aac"
	case "mp3":
		return "audio/mpeg"
	case "ogg", "opus":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// RecordingPreference is the ordered list of containers a voice recording
// is encoded in; the first one supported by the device wins.
var RecordingPreference = []string{"audio/webm", "audio/mp4", "audio/aac"}

// PickFormat returns the first MIME type from prefs accepted by supports.
// The last preference is returned when nothing matches.
func PickFormat(prefs []string, supports func(mimeType string) bool) string {
	if len(prefs) == 0 {
		return ""
	}
	for _, p := range prefs {
		if supports != nil && supports(p) {
			return p
		}
	}
	return prefs[len(prefs)-1]
}
