package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is one charge on a bill. Items are never edited in place; a
// revision replaces the whole list.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
}

// Amount is quantity × rate.
func (li LineItem) Amount() decimal.Decimal {
	return li.Quantity.Mul(li.Rate)
}

type PaymentStatus string

const (
	Pending PaymentStatus = "Pending"
	Paid    PaymentStatus = "Paid"
	Partial PaymentStatus = "Partial"
)

var validPaymentStatuses = map[PaymentStatus]bool{
	Pending: true, Paid: true, Partial: true,
}

func (s PaymentStatus) Valid() bool { return validPaymentStatuses[s] }

// Totals are derived from a bill's items, discount and tax rate and are
// never set by hand.
type Totals struct {
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	TaxAmount      decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	Total          decimal.Decimal `db:"total" json:"total"`
}

type Bill struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	PatientID       uuid.UUID       `db:"patient_id" json:"patient_id"`
	BillType        *string         `db:"bill_type" json:"bill_type,omitempty"`
	PaymentMethod   *string         `db:"payment_method" json:"payment_method,omitempty"`
	LineItems       []LineItem      `db:"items" json:"items"`
	DiscountPercent decimal.Decimal `db:"discount" json:"discount"`
	TaxRatePercent  decimal.Decimal `db:"tax_rate" json:"tax_rate"`
	Totals
	PaymentStatus PaymentStatus `db:"payment_status" json:"payment_status"`
	CreatedBy     *string       `db:"created_by" json:"created_by,omitempty"`
	VersionID     int           `db:"version_id" json:"version_id"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

func (b *Bill) clone() *Bill {
	out := *b
	out.LineItems = append([]LineItem(nil), b.LineItems...)
	return &out
}

// Draft is the input to NewBill.
type Draft struct {
	PatientID       uuid.UUID       `json:"patient_id"`
	LineItems       []LineItem      `json:"items"`
	DiscountPercent decimal.Decimal `json:"discount"`
	TaxRatePercent  decimal.Decimal `json:"tax_rate"`
	PaymentStatus   *PaymentStatus  `json:"payment_status"`
	PaymentMethod   *string         `json:"payment_method"`
	BillType        *string         `json:"bill_type"`
}
