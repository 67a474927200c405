package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Credits is an amount of credit in hundredths. All ledger arithmetic stays in integers.
type Credits int64

const creditScale = 2

// CreditsFromDecimal rounds d half away from zero to two places.
func CreditsFromDecimal(d decimal.Decimal) Credits {
	return Credits(d.Round(creditScale).Shift(creditScale).IntPart())
}

func ParseCredits(raw string) (Credits, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, WrapError(ErrInvalidInput, "parse credits", err)
	}
	return CreditsFromDecimal(d), nil
}

func (c Credits) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -creditScale)
}

func (c Credits) String() string {
	return c.Decimal().StringFixed(creditScale)
}

func (c Credits) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Credits) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*c = 0
		return nil
	}
	parsed, err := ParseCredits(raw)
	if err != nil {
		return fmt.Errorf("unmarshal credits: %w", err)
	}
	*c = parsed
	return nil
}
