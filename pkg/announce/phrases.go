package announce

import (
	"fmt"
	"strings"
)

// Phrasebook holds every user-facing sentence for one locale.
// Format strings take the bill label (and confidence percent where noted).
type Phrasebook struct {
	Locale string

	BillDetected   string // %s label
	TooDark        string
	CameraStarted  string
	CameraError    string
	CameraFlipping string
	AudioEnabled   string

	Tracking  string // %s label
	Confirmed string // %s label, %.1f confidence percent
	Waiting   string
}

var phrasebooks = map[string]Phrasebook{
	"es-MX": {
		Locale:         "es-MX",
		BillDetected:   "Billete de %s pesos mexicanos detectado",
		TooDark:        "Está muy oscuro. Busca más luz",
		CameraStarted:  "Cámara activada",
		CameraError:    "Error al iniciar cámara",
		CameraFlipping: "Cambiando cámara",
		AudioEnabled:   "Audio activado",
		Tracking:       "Detectando $%s...",
		Confirmed:      "$%s MXN · %.1f%% confianza",
		Waiting:        "Apunta la cámara a un billete",
	},
	"en-US": {
		Locale:         "en-US",
		BillDetected:   "%s Mexican peso bill detected",
		TooDark:        "It is too dark. Find more light",
		CameraStarted:  "Camera on",
		CameraError:    "Could not start the camera",
		CameraFlipping: "Switching camera",
		AudioEnabled:   "Audio on",
		Tracking:       "Detecting $%s...",
		Confirmed:      "$%s MXN · %.1f%% confidence",
		Waiting:        "Point the camera at a bill",
	},
}

// DefaultLocale is used when a locale has no phrasebook.
const DefaultLocale = "es-MX"

// Phrases returns the phrasebook for a locale. Unknown locales fall back
// to the same language, then to DefaultLocale.
func Phrases(locale string) Phrasebook {
	if p, ok := phrasebooks[locale]; ok {
		return p
	}
	lang, _, _ := strings.Cut(strings.ReplaceAll(locale, "_", "-"), "-")
	for tag, p := range phrasebooks {
		if strings.EqualFold(strings.SplitN(tag, "-", 2)[0], lang) {
			return p
		}
	}
	return phrasebooks[DefaultLocale]
}

// Locales lists the locales with a phrasebook.
func Locales() []string {
	return []string{"es-MX", "en-US"}
}

// Bill returns the spoken sentence for a confirmed bill.
func (p Phrasebook) Bill(label string) string {
	return fmt.Sprintf(p.BillDetected, label)
}

// TrackingStatus returns the on-screen text while a bill is being confirmed.
func (p Phrasebook) TrackingStatus(label string) string {
	return fmt.Sprintf(p.Tracking, label)
}

// ConfirmedStatus returns the on-screen text for a confirmed bill.
func (p Phrasebook) ConfirmedStatus(label string, confidence float64) string {
	return fmt.Sprintf(p.Confirmed, label, confidence*100)
}
