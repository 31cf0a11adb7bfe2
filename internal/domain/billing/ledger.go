package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hmis/hmis/internal/platform/apperr"
)

var hundred = decimal.NewFromInt(100)

// ComputeTotals derives the four monetary fields of a bill:
//
//	subtotal = Σ quantity × rate
//	tax      = subtotal × taxRatePercent / 100
//	discount = subtotal × discountPercent / 100
//	total    = subtotal + tax − discount
func ComputeTotals(items []LineItem, discountPercent, taxRatePercent decimal.Decimal) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, apperr.Validation("items", "at least one line item is required")
	}
	if discountPercent.IsNegative() || discountPercent.GreaterThan(hundred) {
		return Totals{}, apperr.Validation("discount", "must be between 0 and 100, got %s", discountPercent)
	}
	if taxRatePercent.IsNegative() {
		return Totals{}, apperr.Validation("tax_rate", "must not be negative, got %s", taxRatePercent)
	}

	subtotal := decimal.Zero
	for i, item := range items {
		if !item.Quantity.IsPositive() {
			return Totals{}, apperr.Validation(fmt.Sprintf("items[%d].quantity", i), "must be positive, got %s", item.Quantity)
		}
		if item.Rate.IsNegative() {
			return Totals{}, apperr.Validation(fmt.Sprintf("items[%d].rate", i), "must not be negative, got %s", item.Rate)
		}
		subtotal = subtotal.Add(item.Amount())
	}

	tax := subtotal.Mul(taxRatePercent).Div(hundred)
	discount := subtotal.Mul(discountPercent).Div(hundred)
	return Totals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DiscountAmount: discount,
		Total:          subtotal.Add(tax).Sub(discount),
	}, nil
}

// NewBill builds a bill from d with fresh totals. Payment status defaults to
// Pending.
func NewBill(d Draft, now time.Time) (*Bill, error) {
	totals, err := ComputeTotals(d.LineItems, d.DiscountPercent, d.TaxRatePercent)
	if err != nil {
		return nil, err
	}
	status := Pending
	if d.PaymentStatus != nil {
		status = *d.PaymentStatus
	}
	if !status.Valid() {
		return nil, apperr.Validation("payment_status", "invalid payment status: %s", status)
	}
	return &Bill{
		PatientID:       d.PatientID,
		BillType:        d.BillType,
		PaymentMethod:   d.PaymentMethod,
		LineItems:       append([]LineItem(nil), d.LineItems...),
		DiscountPercent: d.DiscountPercent,
		TaxRatePercent:  d.TaxRatePercent,
		Totals:          totals,
		PaymentStatus:   status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Patch is either a FinancialPatch or a StatusPatch.
type Patch interface {
	isPatch()
}

// StatusPatch changes non-financial fields only. Totals are left as they are.
type StatusPatch struct {
	PaymentStatus *PaymentStatus
	PaymentMethod *string
	BillType      *string
}

// FinancialPatch changes at least one input to the totals. Nil fields keep
// the existing value.
type FinancialPatch struct {
	StatusPatch
	LineItems       []LineItem
	DiscountPercent *decimal.Decimal
	TaxRatePercent  *decimal.Decimal
}

func (StatusPatch) isPatch()    {}
func (FinancialPatch) isPatch() {}

// Revise returns a copy of existing with patch applied. Only a
// FinancialPatch recomputes totals.
func Revise(existing *Bill, patch Patch, now time.Time) (*Bill, error) {
	if existing == nil {
		return nil, apperr.NotFound("bill", "")
	}
	out := existing.clone()

	switch p := patch.(type) {
	case FinancialPatch:
		if err := p.StatusPatch.apply(out); err != nil {
			return nil, err
		}
		if p.LineItems != nil {
			out.LineItems = append([]LineItem(nil), p.LineItems...)
		}
		if p.DiscountPercent != nil {
			out.DiscountPercent = *p.DiscountPercent
		}
		if p.TaxRatePercent != nil {
			out.TaxRatePercent = *p.TaxRatePercent
		}
		totals, err := ComputeTotals(out.LineItems, out.DiscountPercent, out.TaxRatePercent)
		if err != nil {
			return nil, err
		}
		out.Totals = totals
	case StatusPatch:
		if err := p.apply(out); err != nil {
			return nil, err
		}
	default:
		return nil, apperr.Validation("patch", "unsupported patch %T", patch)
	}

	out.UpdatedAt = now
	return out, nil
}

func (p StatusPatch) apply(b *Bill) error {
	if p.PaymentStatus != nil {
		if !p.PaymentStatus.Valid() {
			return apperr.Validation("payment_status", "invalid payment status: %s", *p.PaymentStatus)
		}
		b.PaymentStatus = *p.PaymentStatus
	}
	if p.PaymentMethod != nil {
		b.PaymentMethod = p.PaymentMethod
	}
	if p.BillType != nil {
		b.BillType = p.BillType
	}
	return nil
}

// PatchRequest is the JSON body of a bill update.
type PatchRequest struct {
	Items         []LineItem       `json:"items"`
	Discount      *decimal.Decimal `json:"discount"`
	TaxRate       *decimal.Decimal `json:"tax_rate"`
	PaymentStatus *PaymentStatus   `json:"payment_status"`
	PaymentMethod *string          `json:"payment_method"`
	BillType      *string          `json:"bill_type"`
}

// Patch classifies the request: any of items, discount or tax_rate makes it
// financial.
func (r PatchRequest) Patch() Patch {
	sp := StatusPatch{PaymentStatus: r.PaymentStatus, PaymentMethod: r.PaymentMethod, BillType: r.BillType}
	if r.Items != nil || r.Discount != nil || r.TaxRate != nil {
		return FinancialPatch{StatusPatch: sp, LineItems: r.Items, DiscountPercent: r.Discount, TaxRatePercent: r.TaxRate}
	}
	return sp
}
