package research

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	encoder *tiktoken.Tiktoken
	encErr  error
)

// tokenEncoder lazily loads the cl100k_base encoding shared by the llama and
// gpt tokenizer families closely enough for budget enforcement.
func tokenEncoder() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		encoder, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoder, encErr
}

// truncateToTokens cuts text to at most budget tokens. budget <= 0 disables
// truncation. When the encoding is unavailable (offline first run), falls
// back to an approximate 4-characters-per-token cut.
func truncateToTokens(text string, budget int) string {
	if budget <= 0 {
		return text
	}

	enc, err := tokenEncoder()
	if err != nil {
		approx := budget * 4
		if len(text) <= approx {
			return text
		}
		return text[:approx]
	}

	ids := enc.Encode(text, nil, nil)
	if len(ids) <= budget {
		return text
	}
	return enc.Decode(ids[:budget])
}

// countTokens returns the token count of text, or a length/4 approximation
// when the encoding is unavailable.
func countTokens(text string) int {
	enc, err := tokenEncoder()
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
