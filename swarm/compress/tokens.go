package compress

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts model tokens in a text.
type TokenCounter interface {
	Count(text string) (int, error)
}

// TiktokenCounter counts tokens with a tiktoken encoding. The encoding is
// initialized lazily on first use since it may fetch encoding data.
type TiktokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// NewTiktokenCounter creates a counter for the given encoding name.
// An empty name selects cl100k_base.
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenCounter{encoding: encoding}
}

func (c *TiktokenCounter) init() error {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			c.initErr = fmt.Errorf("init tiktoken encoding %s: %w", c.encoding, err)
			return
		}
		c.enc = enc
	})
	return c.initErr
}

// Count returns the exact token count for the text.
func (c *TiktokenCounter) Count(text string) (int, error) {
	if err := c.init(); err != nil {
		return 0, err
	}
	return len(c.enc.Encode(text, nil, nil)), nil
}

// EstimateCounter approximates one token per four characters. It needs no
// encoding data and never fails, so it doubles as the fallback counter.
type EstimateCounter struct{}

// Count estimates the token count for the text.
func (EstimateCounter) Count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return utf8.RuneCountInString(text)/4 + 1, nil
}
