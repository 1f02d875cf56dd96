package gomtl

import (
	"sort"
	"strings"
)

// LanguageNames maps supported locale codes to the display names used in prompts.
var LanguageNames = map[string]string{
	"en": "English",
	"fr": "French",
	"es": "Spanish",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"nl": "Dutch",
	"ru": "Russian",
	"zh": "Chinese",
	"ja": "Japanese",
	"ko": "Korean",
	"ar": "Arabic",
	"pl": "Polish",
}

// RTLLanguages contains language codes that use right-to-left text direction.
var RTLLanguages = map[string]bool{
	"ar": true, // Arabic
	"he": true, // Hebrew
	"fa": true, // Persian/Farsi
	"ur": true, // Urdu
}

// NormalizeLocale lower-cases a locale and strips region/script subtags
// ("fr-CA" → "fr", "zh_Hant_TW" → "zh"). Empty input yields "".
func NormalizeLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return ""
	}
	base := strings.Split(locale, "-")[0]
	base = strings.Split(base, "_")[0]
	return strings.ToLower(base)
}

// IsSupported reports whether the normalized code is in the supported set.
func IsSupported(code string) bool {
	_, ok := LanguageNames[NormalizeLocale(code)]
	return ok
}

// ValidateLocale normalizes locale and fails with UnsupportedLanguageError
// when the result is not supported.
func ValidateLocale(locale string) (string, error) {
	code := NormalizeLocale(locale)
	if _, ok := LanguageNames[code]; !ok {
		return "", &UnsupportedLanguageError{Locale: code}
	}
	return code, nil
}

// SupportedLocales returns the supported codes in sorted order.
func SupportedLocales() []string {
	codes := make([]string, 0, len(LanguageNames))
	for code := range LanguageNames {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetLanguageName returns the display name for a locale code.
// Falls back to the code itself if not found.
func GetLanguageName(code string) string {
	if name, ok := LanguageNames[NormalizeLocale(code)]; ok {
		return name
	}
	return code
}

// LocaleFromName maps a display name back to its code: exact case-insensitive
// match first, then substring containment, otherwise name is echoed unchanged.
func LocaleFromName(name string) string {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return name
	}

	for _, code := range SupportedLocales() {
		if strings.ToLower(LanguageNames[code]) == needle {
			return code
		}
	}
	for _, code := range SupportedLocales() {
		display := strings.ToLower(LanguageNames[code])
		if strings.Contains(needle, display) || strings.Contains(display, needle) {
			return code
		}
	}
	return name
}

// GetDirection returns "rtl" for right-to-left languages, "ltr" otherwise.
func GetDirection(locale string) string {
	if RTLLanguages[NormalizeLocale(locale)] {
		return "rtl"
	}
	return "ltr"
}

// IsRTL returns true if the language uses right-to-left text direction.
func IsRTL(locale string) bool {
	return GetDirection(locale) == "rtl"
}

// ToHTMLLang converts a locale code to HTML lang attribute format (e.g., "pt_BR" → "pt-BR").
func ToHTMLLang(locale string) string {
	return strings.ReplaceAll(locale, "_", "-")
}
