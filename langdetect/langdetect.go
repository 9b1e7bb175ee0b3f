// Package langdetect identifies the dominant language of transcript
// text so the shell can label it and seed the next session's language
// hint.
package langdetect

import (
	"strings"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const (
	// minRunes is the shortest text worth classifying.
	minRunes = 5
	// confidenceFloor rejects classifications the model is not sure
	// about; below it the result is reported as unknown.
	confidenceFloor = 0.5
)

// supported mirrors the locales the recognition providers ship models
// for. Keeping the classifier restricted to these makes it both faster
// and far more accurate than the full 75-language set.
var supported = []lingua.Language{
	lingua.English,
	lingua.Chinese,
	lingua.Japanese,
	lingua.Korean,
	lingua.French,
	lingua.German,
	lingua.Spanish,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Russian,
	lingua.Arabic,
}

// Detector classifies text into one of the supported languages. Safe
// for concurrent use.
type Detector struct {
	classifier lingua.LanguageDetector
}

// New builds a detector. Language models load lazily on first use.
func New() *Detector {
	return &Detector{
		classifier: lingua.NewLanguageDetectorBuilder().
			FromLanguages(supported...).
			Build(),
	}
}

// Detect returns the ISO 639-1 code and English display name of the
// dominant language of text. Short or ambiguous input yields
// ("auto", "Unknown").
func (d *Detector) Detect(text string) (code, name string) {
	const unknownCode, unknownName = "auto", "Unknown"

	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < minRunes {
		return unknownCode, unknownName
	}
	values := d.classifier.ComputeLanguageConfidenceValues(trimmed)
	if len(values) == 0 || values[0].Value() < confidenceFloor {
		return unknownCode, unknownName
	}
	code = strings.ToLower(values[0].Language().IsoCode639_1().String())
	return code, displayName(code)
}

// displayName renders the English name for an ISO 639-1 code.
func displayName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return "Unknown"
	}
	return display.English.Languages().Name(tag)
}
