package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"bookstore-system/services/order-service/internal/domain"
)

// CardDetails never leave the request: they are validated, handed to the
// gateway and dropped.
type CardDetails struct {
	Number     string
	HolderName string
	Expiry     string // MM/YY
	CVV        string
}

func (c *CardDetails) Validate(now time.Time) error {
	number := strings.NewReplacer(" ", "", "-", "").Replace(c.Number)
	if len(number) < 12 || len(number) > 19 || !digits(number) {
		return fmt.Errorf("%w: card number must be 12 to 19 digits", domain.ErrValidation)
	}
	if len(c.CVV) < 3 || len(c.CVV) > 4 || !digits(c.CVV) {
		return fmt.Errorf("%w: cvv must be 3 or 4 digits", domain.ErrValidation)
	}
	month, year, ok := parseExpiry(c.Expiry)
	if !ok {
		return fmt.Errorf("%w: expiry date must be MM/YY", domain.ErrValidation)
	}
	// A card is valid through the last day of its expiry month.
	expires := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	if !now.UTC().Before(expires) {
		return fmt.Errorf("%w: card has expired", domain.ErrValidation)
	}
	return nil
}

func parseExpiry(s string) (month, year int, ok bool) {
	mm, yy, found := strings.Cut(strings.TrimSpace(s), "/")
	if !found || len(mm) != 2 || len(yy) != 2 {
		return 0, 0, false
	}
	month, err := strconv.Atoi(mm)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	y, err := strconv.Atoi(yy)
	if err != nil {
		return 0, 0, false
	}
	return month, 2000 + y, true
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
