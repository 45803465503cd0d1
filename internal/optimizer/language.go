package optimizer

// Language selects the prompt template family for a request.
type Language string

const (
	// LanguageChinese is used when the input contains CJK unified ideographs.
	LanguageChinese Language = "zh"
	// LanguageEnglish is the default.
	LanguageEnglish Language = "en"
)

// DetectLanguage picks the template language with a character-set heuristic:
// any rune in the CJK unified ideograph block selects Chinese.
func DetectLanguage(text string) Language {
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			return LanguageChinese
		}
	}
	return LanguageEnglish
}
