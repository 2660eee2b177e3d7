// Package tokens tracks context-window token budgets for agent conversations.
package tokens

import (
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// CharsPerToken is the heuristic ratio used when no encoder is available.
const CharsPerToken = 4

// Estimator converts text into an approximate token count.
type Estimator interface {
	Estimate(text string) int
}

// HeuristicEstimator estimates tokens as ceil(bytes/4). It is deliberately
// conservative for prose and close enough for budget accounting.
type HeuristicEstimator struct{}

func (HeuristicEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + CharsPerToken - 1) / CharsPerToken
}

// TiktokenEstimator uses the cl100k_base BPE for precise counts, falling back
// to a character heuristic when the encoder cannot be initialized (offline
// environments cannot fetch the vocabulary).
type TiktokenEstimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTiktokenEstimator() *TiktokenEstimator {
	return &TiktokenEstimator{}
}

func (e *TiktokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			e.enc = enc
		}
	})
	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return heuristicRunes(text)
}

// heuristicRunes weights CJK runes heavier than ASCII, which tracks BPE
// behavior better than a flat byte ratio.
func heuristicRunes(text string) int {
	var estimate float64
	for _, r := range text {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hangul, r) ||
			unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			estimate += 1.5
		} else {
			estimate += 0.25
		}
	}
	if estimate < 1 {
		return 1
	}
	return int(estimate + 0.5)
}
