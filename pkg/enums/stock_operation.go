package enums

import "fmt"

// StockOperation classifies a stock_logs row.
type StockOperation string

const (
	StockOperationReserve   StockOperation = "RESERVE"
	StockOperationRelease   StockOperation = "RELEASE"
	StockOperationDecrement StockOperation = "DECREMENT"
	StockOperationIncrement StockOperation = "INCREMENT"
)

var validStockOperations = []StockOperation{
	StockOperationReserve,
	StockOperationRelease,
	StockOperationDecrement,
	StockOperationIncrement,
}

// String implements fmt.Stringer.
func (o StockOperation) String() string {
	return string(o)
}

// IsValid reports whether the value is a known StockOperation.
func (o StockOperation) IsValid() bool {
	for _, candidate := range validStockOperations {
		if candidate == o {
			return true
		}
	}
	return false
}

// ChangesPhysicalStock reports whether the operation moves products.stock.
// RESERVE and RELEASE only touch the reservation set.
func (o StockOperation) ChangesPhysicalStock() bool {
	return o == StockOperationDecrement || o == StockOperationIncrement
}

// ParseStockOperation converts raw input into a StockOperation.
func ParseStockOperation(value string) (StockOperation, error) {
	for _, candidate := range validStockOperations {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock operation %q", value)
}
