package dialog

import "strings"

// HintRequestClassifier decides whether a student's turn is a bid for
// a hint rather than an attempt at the problem. Kept as a replaceable
// collaborator so a future, better-than-substring-match implementation
// can be swapped in without touching the Dialog Engine.
type HintRequestClassifier interface {
	IsHintRequest(text string) bool
}

// KeywordClassifier is the default implementation: a case-insensitive
// substring match against a fixed multilingual keyword list. This is
// a known weak point (a student saying "I don't know if this helps"
// would false-positive on "help"); it is kept deliberately simple.
type KeywordClassifier struct {
	keywords []string
}

// DefaultHintKeywords is the fixed multilingual keyword list used when
// no override is configured.
func DefaultHintKeywords() []string {
	return []string{
		"給我提示", "提示", "幫幫我", "不知道", "不會",
		"hint", "help", "卡住", "想不出來",
	}
}

// NewKeywordClassifier builds a classifier over the given keyword
// list. An empty list falls back to DefaultHintKeywords.
func NewKeywordClassifier(keywords []string) *KeywordClassifier {
	if len(keywords) == 0 {
		keywords = DefaultHintKeywords()
	}
	lower := make([]string, len(keywords))
	for i, k := range keywords {
		lower[i] = strings.ToLower(k)
	}
	return &KeywordClassifier{keywords: lower}
}

func (k *KeywordClassifier) IsHintRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range k.keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
