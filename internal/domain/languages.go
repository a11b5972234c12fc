package domain

// LanguageOption describes one language hint accepted by the transcription service.
type LanguageOption struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
