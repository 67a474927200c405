package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

type tokenCacheFake struct {
	values map[string]int
	getErr error
	sets   int
}

func (c *tokenCacheFake) GetTokenCount(_ context.Context, key string) (int, bool, error) {
	if c.getErr != nil {
		return 0, false, c.getErr
	}
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *tokenCacheFake) SetTokenCount(_ context.Context, key string, tokens int) error {
	if c.values == nil {
		c.values = make(map[string]int)
	}
	c.values[key] = tokens
	c.sets++
	return nil
}

func TestEstimateCostAppliesKindRates(t *testing.T) {
	estimator := NewPricingEstimator(&wordTokenizer{}, nil, DefaultPricingRates())
	text := strings.Repeat("word ", 1000)

	tests := []struct {
		kind domain.ArtifactKind
		want string
	}{
		// 1000 tokens x 0.000006 USD x 1700 x 7.5
		{kind: domain.KindSummary, want: "76.50"},
		{kind: domain.KindMindMap, want: "127.50"},
		{kind: domain.KindFlashCards, want: "191.25"},
	}
	for _, tt := range tests {
		got, err := estimator.EstimateCost(context.Background(), text, tt.kind)
		if err != nil {
			t.Fatalf("EstimateCost(%s) error = %v", tt.kind, err)
		}
		if got.String() != tt.want {
			t.Fatalf("EstimateCost(%s) = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestEstimateCostIsDeterministicAndOrdered(t *testing.T) {
	estimator := NewPricingEstimator(&wordTokenizer{}, nil, DefaultPricingRates())
	text := "Photosynthesis converts light energy into chemical energy stored in glucose."

	first, err := estimator.EstimateCost(context.Background(), text, domain.KindMindMap)
	if err != nil {
		t.Fatalf("EstimateCost() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := estimator.EstimateCost(context.Background(), text, domain.KindMindMap)
		if err != nil {
			t.Fatalf("EstimateCost() error = %v", err)
		}
		if again != first {
			t.Fatalf("cost changed between calls: %s vs %s", first, again)
		}
	}

	summary, _ := estimator.EstimateCost(context.Background(), text, domain.KindSummary)
	cards, _ := estimator.EstimateCost(context.Background(), text, domain.KindFlashCards)
	if !(summary < first && first < cards) {
		t.Fatalf("expected summary < mind map < flash cards, got %s, %s, %s", summary, first, cards)
	}
}

func TestEstimateCostEmptyTextIsFree(t *testing.T) {
	tokenizer := &wordTokenizer{}
	estimator := NewPricingEstimator(tokenizer, nil, DefaultPricingRates())

	for _, kind := range domain.ArtifactKinds {
		got, err := estimator.EstimateCost(context.Background(), "", kind)
		if err != nil {
			t.Fatalf("EstimateCost(%s) error = %v", kind, err)
		}
		if got != 0 {
			t.Fatalf("EstimateCost(%s) = %s, want 0", kind, got)
		}
	}
	if tokenizer.calls != 0 {
		t.Fatalf("tokenizer must not run for empty text, calls=%d", tokenizer.calls)
	}
}

func TestEstimateCostRejectsUnknownKind(t *testing.T) {
	estimator := NewPricingEstimator(&wordTokenizer{}, nil, DefaultPricingRates())
	_, err := estimator.EstimateCost(context.Background(), "text", domain.ArtifactKind("quiz"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestEstimateCostUsesTokenCache(t *testing.T) {
	tokenizer := &wordTokenizer{}
	cache := &tokenCacheFake{}
	estimator := NewPricingEstimator(tokenizer, cache, DefaultPricingRates())

	for i := 0; i < 3; i++ {
		if _, err := estimator.EstimateCost(context.Background(), "one two three", domain.KindSummary); err != nil {
			t.Fatalf("EstimateCost() error = %v", err)
		}
	}
	if tokenizer.calls != 1 {
		t.Fatalf("expected one tokenizer call, got %d", tokenizer.calls)
	}
	if cache.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cache.sets)
	}
}

func TestEstimateCostFallsBackWhenCacheFails(t *testing.T) {
	tokenizer := &wordTokenizer{}
	cache := &tokenCacheFake{getErr: errors.New("redis down")}
	estimator := NewPricingEstimator(tokenizer, cache, DefaultPricingRates())

	got, err := estimator.EstimateCost(context.Background(), strings.Repeat("a ", 100), domain.KindSummary)
	if err != nil {
		t.Fatalf("EstimateCost() error = %v", err)
	}
	if got.String() != "7.65" {
		t.Fatalf("EstimateCost() = %s, want 7.65", got)
	}
}

func TestCreditsForPayment(t *testing.T) {
	rates := DefaultPricingRates()
	if got := rates.CreditsForPayment(1000); got.String() != "75.00" {
		t.Fatalf("CreditsForPayment(1000) = %s, want 75.00", got)
	}
	if got := rates.CreditsForPayment(1); got.String() != "0.08" {
		t.Fatalf("CreditsForPayment(1) = %s, want 0.08", got)
	}
}

func TestPricingRatesValidate(t *testing.T) {
	rates := DefaultPricingRates()
	if err := rates.Validate(); err != nil {
		t.Fatalf("default rates invalid: %v", err)
	}

	rates.LocalPerUSD = decimal.Zero
	if err := rates.Validate(); err == nil {
		t.Fatalf("expected error for zero exchange rate")
	}

	rates = DefaultPricingRates()
	delete(rates.USDPerToken, domain.KindFlashCards)
	if err := rates.Validate(); err == nil {
		t.Fatalf("expected error for missing kind rate")
	}
}
