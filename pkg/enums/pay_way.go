package enums

import "fmt"

// PayWay describes how the buyer settled the order.
type PayWay string

const (
	PayWayCard         PayWay = "card"
	PayWayBankTransfer PayWay = "bank_transfer"
	PayWayWallet       PayWay = "wallet"
)

var validPayWays = []PayWay{
	PayWayCard,
	PayWayBankTransfer,
	PayWayWallet,
}

// String implements fmt.Stringer.
func (p PayWay) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayWay.
func (p PayWay) IsValid() bool {
	for _, candidate := range validPayWays {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePayWay converts raw input into a PayWay.
func ParsePayWay(value string) (PayWay, error) {
	for _, candidate := range validPayWays {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pay way %q", value)
}
