package tts

import "strings"

// ElevenLabsVoices maps friendly preset names to ElevenLabs voice IDs.
// Use ResolveElevenLabsVoice to look up a voice by name or pass through raw IDs.
var ElevenLabsVoices = map[string]string{
	"charlotte": "XB0fDUnXU5powFXDhCwa", // British female, warm; multilingual
	"aria":      "9BWtsMINqrJLrRacOk9x", // American female, expressive
	"sarah":     "EXAVITQu4vr4xnSDxMaL", // American female, soft
	"rachel":    "21m00Tcm4TlvDq8ikWAM", // American female, calm
	"adam":      "pNInz6obpgDQGcFmaJgB", // American male, deep
}

// ResolveElevenLabsVoice returns the voice ID for a preset name,
// or the input unchanged if it's already a voice ID.
func ResolveElevenLabsVoice(name string) string {
	if id, ok := ElevenLabsVoices[strings.ToLower(name)]; ok {
		return id
	}
	return name
}

// DefaultVoice picks a voice for a provider and locale.
func DefaultVoice(provider, language string) string {
	switch provider {
	case providerOpenAI:
		return VoiceNova
	case providerElevenLabs:
		if baseLanguage(language) == "en" {
			return "rachel"
		}
		return "charlotte"
	case providerGoogle:
		switch googleLanguage(language) {
		case "es-US":
			return "es-US-Neural2-A"
		case "es-ES":
			return "es-ES-Neural2-A"
		case "en-US":
			return "en-US-Neural2-F"
		}
	}
	return ""
}

// baseLanguage returns the language subtag of a BCP-47 tag ("es-MX" -> "es").
func baseLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

// googleLanguage maps a locale onto one Google Cloud TTS has voices for.
// Latin American Spanish is served by the es-US voices.
func googleLanguage(tag string) string {
	switch strings.ToLower(strings.ReplaceAll(tag, "_", "-")) {
	case "", "es-mx", "es-419", "es-us":
		return "es-US"
	case "es", "es-es":
		return "es-ES"
	case "en", "en-us":
		return "en-US"
	default:
		return tag
	}
}
