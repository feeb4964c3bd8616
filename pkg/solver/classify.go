package solver

import "regexp"

// QuestionClass is the coarse category a question falls into, used to pick
// cheap deterministic resolution paths before spending an LLM call.
type QuestionClass int

const (
	ClassUnknown QuestionClass = iota
	ClassNumeric
	ClassScraping
	ClassAPICall
)

func (c QuestionClass) String() string {
	switch c {
	case ClassNumeric:
		return "numeric"
	case ClassScraping:
		return "scraping"
	case ClassAPICall:
		return "api-call"
	default:
		return "unknown"
	}
}

// Classifier decides the question category. Pluggable so the heuristics can
// be swapped or tested independently of the orchestration flow.
type Classifier interface {
	Classify(text string) QuestionClass
}

var (
	numericPattern = regexp.MustCompile(`(?i)\b(sum|total|count|average|mean|median|maximum|minimum|max|min|how many)\b`)
	apiCallPhrase  = regexp.MustCompile(`(?i)\b(api|endpoint)\b`)
	scrapingPhrase = regexp.MustCompile(`(?i)\b(scrape|crawl|visit|web\s?page|website)\b`)
)

// KeywordClassifier is the default regex-based heuristic.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(text string) QuestionClass {
	switch {
	case numericPattern.MatchString(text):
		return ClassNumeric
	case apiCallPhrase.MatchString(text):
		return ClassAPICall
	case scrapingPhrase.MatchString(text):
		return ClassScraping
	default:
		return ClassUnknown
	}
}
