package stock

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockengine/internal/products"
	"github.com/angelmondragon/stockengine/pkg/db/models"
	"github.com/angelmondragon/stockengine/pkg/enums"
)

// LogsByProduct returns the product's audit trail in commit order.
func (m *Manager) LogsByProduct(ctx context.Context, productID uuid.UUID) ([]models.StockLog, error) {
	logs, err := newRepository(m.db.WithContext(ctx)).logsByProduct(ctx, productID)
	if err != nil {
		return nil, dependency(err, "list product stock logs")
	}
	return logs, nil
}

// LogsByOrder returns every audit row tied to the order in commit order.
func (m *Manager) LogsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockLog, error) {
	logs, err := newRepository(m.db.WithContext(ctx)).logsByOrder(ctx, orderID)
	if err != nil {
		return nil, dependency(err, "list order stock logs")
	}
	return logs, nil
}

// Outstanding is physical stock an order still holds for one product.
type Outstanding struct {
	ProductID uuid.UUID
	Quantity  int
}

// OutstandingByOrder nets every DECREMENT against every INCREMENT logged for
// the order, per product. Products whose net is zero or less are omitted. The
// result is sorted by product id so callers lock rows in a stable order.
func (m *Manager) OutstandingByOrder(ctx context.Context, orderID uuid.UUID) ([]Outstanding, error) {
	logs, err := m.LogsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	net := map[uuid.UUID]int{}
	for _, entry := range logs {
		if entry.OperationType.ChangesPhysicalStock() {
			net[entry.ProductID] -= entry.QuantityDelta
		}
	}
	out := make([]Outstanding, 0, len(net))
	for productID, qty := range net {
		if qty > 0 {
			out = append(out, Outstanding{ProductID: productID, Quantity: qty})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProductID.String() < out[j].ProductID.String()
	})
	return out, nil
}

// LedgerBreak is a place where the chain of stock logs does not line up.
type LedgerBreak struct {
	LogID          int64
	Operation      enums.StockOperation
	ExpectedBefore int
	ActualBefore   int
}

// LedgerReport is the result of replaying a product's audit trail.
type LedgerReport struct {
	ProductID    uuid.UUID
	Entries      int
	CurrentStock int
	LedgerStock  int
	Breaks       []LedgerBreak
}

// InSync reports whether the chain is unbroken and ends at the current stock.
func (r LedgerReport) InSync() bool {
	return len(r.Breaks) == 0 && (r.Entries == 0 || r.LedgerStock == r.CurrentStock)
}

// VerifyLedger replays the product's logs and reports every row whose
// stock_before differs from the previous row's stock_after. Breaks come from
// edits made outside the manager; they are reported, not repaired.
func (m *Manager) VerifyLedger(ctx context.Context, productID uuid.UUID) (LedgerReport, error) {
	report := LedgerReport{ProductID: productID}

	product, err := products.NewRepository(m.db.WithContext(ctx)).FindByID(ctx, productID)
	if err != nil {
		if isNotFound(err) {
			return report, productNotFound(productID)
		}
		return report, dependency(err, "load product")
	}
	report.CurrentStock = product.Stock

	logs, err := m.LogsByProduct(ctx, productID)
	if err != nil {
		return report, err
	}
	report.Entries = len(logs)
	for i, entry := range logs {
		if i > 0 && entry.StockBefore != report.LedgerStock {
			report.Breaks = append(report.Breaks, LedgerBreak{
				LogID:          entry.ID,
				Operation:      entry.OperationType,
				ExpectedBefore: report.LedgerStock,
				ActualBefore:   entry.StockBefore,
			})
		}
		report.LedgerStock = entry.StockAfter
	}

	if !report.InSync() {
		logCtx := m.logg.WithFields(ctx, map[string]any{
			"product_id":    productID.String(),
			"breaks":        len(report.Breaks),
			"ledger_stock":  report.LedgerStock,
			"current_stock": report.CurrentStock,
		})
		m.logg.Warn(logCtx, "stock ledger diverges from product stock")
	}
	return report, nil
}
