package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
)

// PricingRates converts tokens to credits: tokens x USD/token x local/USD x credits/local.
type PricingRates struct {
	USDPerToken     map[domain.ArtifactKind]decimal.Decimal
	LocalPerUSD     decimal.Decimal
	CreditsPerLocal decimal.Decimal
}

func DefaultPricingRates() PricingRates {
	return PricingRates{
		USDPerToken: map[domain.ArtifactKind]decimal.Decimal{
			domain.KindSummary:    decimal.RequireFromString("0.000006"),
			domain.KindMindMap:    decimal.RequireFromString("0.00001"),
			domain.KindFlashCards: decimal.RequireFromString("0.000015"),
		},
		LocalPerUSD:     decimal.NewFromInt(1700),
		CreditsPerLocal: decimal.RequireFromString("7.5"),
	}
}

func (r PricingRates) Validate() error {
	for _, kind := range domain.ArtifactKinds {
		rate, ok := r.USDPerToken[kind]
		if !ok {
			return fmt.Errorf("missing usd per token rate for %s", kind)
		}
		if rate.IsNegative() {
			return fmt.Errorf("negative usd per token rate for %s", kind)
		}
	}
	if !r.LocalPerUSD.IsPositive() {
		return errors.New("local per usd must be positive")
	}
	if !r.CreditsPerLocal.IsPositive() {
		return errors.New("credits per local must be positive")
	}
	return nil
}

// CreditsForPayment converts a paid amount in minor currency units to credits.
func (r PricingRates) CreditsForPayment(amountMinor int64) domain.Credits {
	major := decimal.New(amountMinor, -2)
	return domain.CreditsFromDecimal(major.Mul(r.CreditsPerLocal))
}

type PricingEstimator struct {
	tokenizer ports.Tokenizer
	cache     ports.TokenCountCache
	rates     PricingRates
}

// NewPricingEstimator builds an estimator. cache may be nil.
func NewPricingEstimator(tokenizer ports.Tokenizer, cache ports.TokenCountCache, rates PricingRates) *PricingEstimator {
	return &PricingEstimator{
		tokenizer: tokenizer,
		cache:     cache,
		rates:     rates,
	}
}

func (pe *PricingEstimator) Rates() PricingRates {
	return pe.rates
}

func (pe *PricingEstimator) EstimateCost(ctx context.Context, text string, kind domain.ArtifactKind) (domain.Credits, error) {
	rate, ok := pe.rates.USDPerToken[kind]
	if !ok {
		return 0, domain.WrapError(domain.ErrInvalidInput, "estimate cost", fmt.Errorf("unknown kind %q", kind))
	}
	if text == "" {
		return 0, nil
	}

	tokens, err := pe.countTokens(ctx, text)
	if err != nil {
		return 0, err
	}

	cost := decimal.NewFromInt(int64(tokens)).
		Mul(rate).
		Mul(pe.rates.LocalPerUSD).
		Mul(pe.rates.CreditsPerLocal)
	return domain.CreditsFromDecimal(cost), nil
}

func (pe *PricingEstimator) countTokens(ctx context.Context, text string) (int, error) {
	sum := sha256.Sum256([]byte(text))
	key := hex.EncodeToString(sum[:])

	if pe.cache != nil {
		tokens, hit, err := pe.cache.GetTokenCount(ctx, key)
		if err != nil {
			slog.Warn("token_cache_get_failed", "error", err.Error())
		} else if hit {
			return tokens, nil
		}
	}

	tokens, err := pe.tokenizer.CountTokens(text)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}

	if pe.cache != nil {
		if err := pe.cache.SetTokenCount(ctx, key, tokens); err != nil {
			slog.Warn("token_cache_set_failed", "error", err.Error())
		}
	}
	return tokens, nil
}
