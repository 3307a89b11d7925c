package assemble

import (
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the token cost of a piece of text. Implementations
// must be safe for concurrent use.
type TokenCounter interface {
	Count(text string) int
}

// TokenCounterFunc adapts a plain function into a TokenCounter.
type TokenCounterFunc func(text string) int

func (f TokenCounterFunc) Count(text string) int {
	return f(text)
}

// TiktokenCounter counts tokens with a tiktoken encoding.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter for the given encoding name. An
// empty name selects o200k_base.
func NewTiktokenCounter(encodingName string) (*TiktokenCounter, error) {
	if encodingName == "" {
		encodingName = "o200k_base"
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{encoding: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// HeuristicCounter approximates roughly four characters per token. It is
// the fallback when no tiktoken encoding can be loaded.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// DefaultTokenCounter returns the tiktoken-backed counter, falling back to
// the character heuristic when the encoding is unavailable.
func DefaultTokenCounter() TokenCounter {
	counter, err := NewTiktokenCounter("")
	if err != nil {
		return HeuristicCounter{}
	}
	return counter
}
