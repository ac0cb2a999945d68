package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/stockengine/pkg/db/models"
)

type lineCheck struct {
	errors   []CartIssue
	warnings []CartIssue
	price    *PriceWarning
}

// ValidateCartForCheckout is an advisory pre-check. It takes no locks, so a
// valid result can still fail at order creation.
func (s *service) ValidateCartForCheckout(ctx context.Context, cartModel *models.Cart) CartValidation {
	result := CartValidation{
		Errors:        []CartIssue{},
		Warnings:      []CartIssue{},
		PriceWarnings: []PriceWarning{},
	}
	if cartModel == nil || len(cartModel.Items) == 0 {
		result.Errors = append(result.Errors, CartIssue{Message: "cart is empty"})
		return result
	}

	// lines for the same product draw on one stock pool; the first such line
	// carries the stock comparison for their combined quantity
	requested := make(map[uuid.UUID]int, len(cartModel.Items))
	first := make(map[uuid.UUID]int, len(cartModel.Items))
	for i, item := range cartModel.Items {
		if item.Quantity <= 0 {
			continue
		}
		if _, seen := first[item.ProductID]; !seen {
			first[item.ProductID] = i
		}
		requested[item.ProductID] += item.Quantity
	}

	checks := make([]lineCheck, len(cartModel.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, item := range cartModel.Items {
		i, item := i, item
		g.Go(func() error {
			total := 0
			if first[item.ProductID] == i {
				total = requested[item.ProductID]
			}
			checks[i] = s.checkLine(gctx, cartModel.SessionID, item, total)
			return nil
		})
	}
	_ = g.Wait()

	for _, check := range checks {
		result.Errors = append(result.Errors, check.errors...)
		result.Warnings = append(result.Warnings, check.warnings...)
		if check.price != nil {
			result.PriceWarnings = append(result.PriceWarnings, *check.price)
		}
	}
	result.Valid = len(result.Errors) == 0
	return result
}

// checkLine compares total against available stock. A zero total skips the
// stock comparison for lines already covered by an earlier line.
func (s *service) checkLine(ctx context.Context, sessionID string, item models.CartItem, total int) lineCheck {
	var check lineCheck
	issue := func(msg string) CartIssue {
		return CartIssue{ProductID: item.ProductID, Message: msg}
	}

	if item.Quantity <= 0 {
		check.errors = append(check.errors, issue("quantity must be positive"))
		return check
	}

	product, err := s.catalog.FindByID(ctx, item.ProductID)
	if err != nil {
		if isNotFound(err) {
			check.errors = append(check.errors, issue("product not found"))
		} else {
			s.logg.Error(s.logg.WithProductID(ctx, item.ProductID.String()), "cart validation lookup failed", err)
			check.errors = append(check.errors, issue("product could not be checked"))
		}
		return check
	}
	if !product.IsActive {
		check.errors = append(check.errors, issue("product is not available"))
		return check
	}
	if total == 0 {
		check.price = priceDrift(item, product)
		return check
	}

	available, err := s.stock.GetAvailableStock(ctx, product.ID)
	if err != nil {
		check.errors = append(check.errors, issue("stock could not be checked"))
		return check
	}
	// the session's own holds are already subtracted from available
	holds, err := s.stock.SessionReservations(ctx, sessionID, product.ID)
	if err != nil {
		check.errors = append(check.errors, issue("stock could not be checked"))
		return check
	}
	for _, hold := range holds {
		available += hold.Quantity
	}

	if total > available {
		stockIssue := issue(fmt.Sprintf("only %d available", available))
		stockIssue.Available = available
		stockIssue.Requested = total
		check.errors = append(check.errors, stockIssue)
	} else if remaining := available - total; remaining < s.lowStock {
		lowIssue := issue(fmt.Sprintf("low stock: %d left after this order", remaining))
		lowIssue.Available = available
		lowIssue.Requested = total
		check.warnings = append(check.warnings, lowIssue)
	}

	check.price = priceDrift(item, product)
	return check
}

func priceDrift(item models.CartItem, product *models.Product) *PriceWarning {
	if item.UnitPriceCents == product.PriceCents {
		return nil
	}
	return &PriceWarning{
		ProductID:         product.ID,
		CartPriceCents:    item.UnitPriceCents,
		CurrentPriceCents: product.PriceCents,
	}
}
