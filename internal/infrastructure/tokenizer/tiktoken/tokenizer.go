package tiktoken

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

// ReferenceModel fixes the vocabulary used for pricing, independent of the model
// that actually serves generation.
const ReferenceModel = "gpt-3.5-turbo"

var loaderOnce sync.Once

// Tokenizer counts tokens with an embedded BPE table, so pricing never downloads
// vocabulary files at request time.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

func New() (*Tokenizer, error) {
	return NewForModel(ReferenceModel)
}

func NewForModel(model string) (*Tokenizer, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding for %s: %w", model, err)
	}
	return &Tokenizer{encoding: encoding}, nil
}

func (t *Tokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return len(t.encoding.Encode(text, nil, nil)), nil
}
