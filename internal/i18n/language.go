// Package i18n holds the active display language and its mapping onto TMDB locale codes.
package i18n

import "sync/atomic"

// Supported display languages.
const (
	SimplifiedChinese  = "zh-CN"
	TraditionalChinese = "zh-TW"
	English            = "en-US"
)

// DefaultLanguage is used for absent or unrecognized languages.
const DefaultLanguage = SimplifiedChinese

// SupportedLanguage describes a selectable display language.
type SupportedLanguage struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// SupportedLanguages lists the display languages in presentation order.
var SupportedLanguages = []SupportedLanguage{
	{Code: SimplifiedChinese, Name: "简体中文"},
	{Code: TraditionalChinese, Name: "繁體中文"},
	{Code: English, Name: "English"},
}

// IsSupported reports whether code is one of the supported display languages.
func IsSupported(code string) bool {
	for _, l := range SupportedLanguages {
		if l.Code == code {
			return true
		}
	}
	return false
}

// ResolveTMDBLanguage maps a display language onto the locale code sent to TMDB.
func ResolveTMDBLanguage(lang string) string {
	switch lang {
	case TraditionalChinese:
		return TraditionalChinese
	case English:
		return English
	default:
		return DefaultLanguage
	}
}

// Language is the process-wide current display language indicator.
// The zero value reports DefaultLanguage.
type Language struct {
	v atomic.Value
}

// NewLanguage returns an indicator initialised to lang.
func NewLanguage(lang string) *Language {
	l := &Language{}
	l.Set(lang)
	return l
}

// Current returns the active display language.
func (l *Language) Current() string {
	if l == nil {
		return DefaultLanguage
	}
	if s, ok := l.v.Load().(string); ok && s != "" {
		return s
	}
	return DefaultLanguage
}

// Set changes the active language. Unsupported codes are ignored and false is returned.
func (l *Language) Set(lang string) bool {
	if !IsSupported(lang) {
		return false
	}
	l.v.Store(lang)
	return true
}
