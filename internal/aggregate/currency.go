package aggregate

import (
	"strconv"
	"strings"

	"github.com/user/marketradar/internal/protocol"
)

// FormatPrice renders an amount for display. BRL uses the Brazilian "R$"
// symbol with a comma decimal separator; other currencies are prefixed by
// their code and keep the dot.
func FormatPrice(value float64, currency string) string {
	amount := strconv.FormatFloat(value, 'f', 2, 64)
	if currency == "" || currency == protocol.DefaultCurrency {
		return "R$ " + strings.Replace(amount, ".", ",", 1)
	}
	return currency + " " + amount
}
