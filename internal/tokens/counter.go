package tokens

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const (
	UnitChars  = "chars"
	UnitTokens = "tokens"

	defaultEncoding = "cl100k_base"
)

// Counter measures text in the unit used by the context budget.
type Counter interface {
	Count(text string) int
	Unit() string
}

// New returns a character counter or a tiktoken counter for encoding.
func New(unit, encoding string) (Counter, error) {
	switch unit {
	case UnitChars, "":
		return Chars{}, nil
	case UnitTokens:
		return NewTiktoken(encoding)
	default:
		return nil, fmt.Errorf("unknown budget unit %q", unit)
	}
}

type Chars struct{}

func (Chars) Count(text string) int { return utf8.RuneCountInString(text) }
func (Chars) Unit() string          { return UnitChars }

type Tiktoken struct {
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewTiktoken accepts an encoding name or a model name.
func NewTiktoken(encodingOrModel string) (*Tiktoken, error) {
	if encodingOrModel == "" {
		encodingOrModel = defaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encodingOrModel)
	if err != nil {
		enc, err = tiktoken.EncodingForModel(encodingOrModel)
		if err != nil {
			return nil, fmt.Errorf("tiktoken encoding %q: %w", encodingOrModel, err)
		}
	}
	return &Tiktoken{encoding: encodingOrModel, enc: enc}, nil
}

func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

func (t *Tiktoken) Unit() string { return UnitTokens }

func (t *Tiktoken) Encoding() string { return t.encoding }
