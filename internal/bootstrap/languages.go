package bootstrap

import (
	"strings"

	"video2article/internal/domain"
)

// languageCatalog lists the language hints accepted by the speech-to-text service.
var languageCatalog = []domain.LanguageOption{
	{Code: "en", Name: "English (global)"},
	{Code: "en_us", Name: "English (US)"},
	{Code: "en_uk", Name: "English (UK)"},
	{Code: "en_au", Name: "English (Australia)"},
	{Code: "es", Name: "Spanish"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
	{Code: "it", Name: "Italian"},
	{Code: "pt", Name: "Portuguese"},
	{Code: "nl", Name: "Dutch"},
	{Code: "fi", Name: "Finnish"},
	{Code: "pl", Name: "Polish"},
	{Code: "ru", Name: "Russian"},
	{Code: "tr", Name: "Turkish"},
	{Code: "uk", Name: "Ukrainian"},
	{Code: "vi", Name: "Vietnamese"},
	{Code: "hi", Name: "Hindi"},
	{Code: "ja", Name: "Japanese"},
	{Code: "ko", Name: "Korean"},
	{Code: "zh", Name: "Chinese"},
}

// Languages returns the supported language hints.
func (a *App) Languages() []domain.LanguageOption {
	return SupportedLanguages()
}

// SupportedLanguages returns a copy of the language catalog.
func SupportedLanguages() []domain.LanguageOption {
	out := make([]domain.LanguageOption, len(languageCatalog))
	copy(out, languageCatalog)
	return out
}

// IsSupportedLanguage reports whether code is in the catalog.
func IsSupportedLanguage(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, lang := range languageCatalog {
		if lang.Code == code {
			return true
		}
	}
	return false
}
