package payment

import (
	"context"
	"math"
)

// IntentInput carries everything needed to open a payment intent for an
// order.
type IntentInput struct {
	CustomerID  string
	Currency    string
	AmountMinor int64
	OrderNumber string
	UserID      uint
}

// Intent is the processor-neutral view of a payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	CustomerID   string
	Status       string
}

// WebhookEvent is a verified, parsed webhook delivery. PaymentIntentID
// is populated for the event types the reconciliation flow cares about
// and empty otherwise.
type WebhookEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
	Raw             []byte
}

// Processor abstracts the external payment gateway (Stripe in
// production). Services depend on this interface so tests can swap in
// a fake.
type Processor interface {
	CreateProduct(ctx context.Context, name, description string) (string, error)
	UpdateProduct(ctx context.Context, productID, name, description string) error
	ArchiveProduct(ctx context.Context, productID string) error
	CreatePrice(ctx context.Context, productID, currency string, amountMinor int64) (string, error)
	ArchivePrice(ctx context.Context, priceID string) error
	CreateCustomer(ctx context.Context, email, name string, userID uint) (string, error)
	CreatePaymentIntent(ctx context.Context, in IntentInput) (*Intent, error)
	GetPaymentIntent(ctx context.Context, id string) (*Intent, error)
	ConstructWebhookEvent(payload []byte, sigHeader string) (*WebhookEvent, error)
}

// MinorUnits converts a decimal price into the smallest currency unit
// expected by the processor.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
