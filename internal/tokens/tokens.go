// Package tokens estimates token counts for cost accounting when a
// provider response omits usage figures.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens with tiktoken. The codec is resolved lazily
// and cached; resolution failure degrades to a rough length-based
// estimate rather than an error, since counts only feed metrics.
type Counter struct {
	model string

	once  sync.Once
	codec tokenizer.Codec
}

// NewCounter creates a counter for the given model name.
func NewCounter(model string) *Counter {
	return &Counter{model: model}
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	c.once.Do(func() {
		codec, err := tokenizer.Get(encodingFor(c.model))
		if err == nil {
			c.codec = codec
		}
	})
	if c.codec == nil {
		// ~4 characters per token for English-ish text.
		return (len(text) + 3) / 4
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(ids)
}

func encodingFor(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "gpt-4.1"),
		strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}
