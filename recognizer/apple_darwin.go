//go:build darwin

package recognizer

/*
#cgo CFLAGS: -x objective-c -fobjc-arc -mmacosx-version-min=10.15
#cgo LDFLAGS: -framework Speech -framework Foundation -framework AVFoundation

#include <stdlib.h>

extern char* recognizeSpeech(float* samples, int sampleCount, int sampleRate, const char* language);
extern int isSpeechRecognitionAvailable(const char* language);
extern int requestSpeechRecognitionAuthorization(void);
*/
import "C"

import (
	"context"
	"fmt"
	"strings"
	"unsafe"
)

// Apple recognizes speech through the macOS Speech framework. On-device
// when the model is installed, low latency, no network round trip.
type Apple struct{}

// NewApple creates the macOS Speech provider. Authorization is
// requested lazily on first use; asking during init can deadlock the
// main thread under the app shell.
func NewApple() *Apple {
	return &Apple{}
}

func (a *Apple) Name() string        { return "apple" }
func (a *Apple) DisplayName() string { return "Apple Speech" }

func (a *Apple) Available() bool {
	cLocale := C.CString(languageToLocale(""))
	defer C.free(unsafe.Pointer(cLocale))
	return C.isSpeechRecognitionAvailable(cLocale) != 0
}

func (a *Apple) NewSession(cfg SessionConfig) (Session, error) {
	if !a.Available() {
		return nil, fmt.Errorf("apple: %w", ErrUnavailable)
	}
	return newChunkedSession(cfg, a.transcribe, DefaultVADConfig(), whisperSampleRate), nil
}

func (a *Apple) transcribe(_ context.Context, samples []float32, sampleRate int, language string) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	locale := languageToLocale(language)
	cLocale := C.CString(locale)
	defer C.free(unsafe.Pointer(cLocale))

	if C.isSpeechRecognitionAvailable(cLocale) == 0 {
		return "", fmt.Errorf("apple: no recognizer for locale %s", locale)
	}

	cResult := C.recognizeSpeech(
		(*C.float)(unsafe.Pointer(&samples[0])),
		C.int(len(samples)),
		C.int(sampleRate),
		cLocale,
	)
	if cResult == nil {
		return "", nil
	}
	defer C.free(unsafe.Pointer(cResult))

	return strings.TrimSpace(C.GoString(cResult)), nil
}

// languageToLocale maps short language codes to the locale identifiers
// the Speech framework expects.
func languageToLocale(lang string) string {
	if lang == "" || lang == "auto" {
		return "en-US"
	}

	locales := map[string]string{
		"en": "en-US",
		"zh": "zh-CN",
		"ja": "ja-JP",
		"ko": "ko-KR",
		"fr": "fr-FR",
		"de": "de-DE",
		"es": "es-ES",
		"it": "it-IT",
		"pt": "pt-BR",
		"ru": "ru-RU",
		"ar": "ar-SA",
	}
	if locale, ok := locales[lang]; ok {
		return locale
	}
	if strings.Contains(lang, "-") || strings.Contains(lang, "_") {
		return lang
	}
	return lang + "-" + strings.ToUpper(lang)
}
