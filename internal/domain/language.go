package domain

// Interface languages for replies and prompts.
const (
	LanguageEnglish = "en"
	LanguageRussian = "ru"
)

// SupportedLanguage reports whether lang has texts and prompts.
func SupportedLanguage(lang string) bool {
	return lang == LanguageEnglish || lang == LanguageRussian
}
