package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jobhive/jobhive/internal/pkg/env"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/product"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProcessor implements Processor against the Stripe API using the
// official SDK's package-level clients.
type StripeProcessor struct {
	webhookSecret string
}

// NewStripeProcessorFromEnv wires the Stripe API key and webhook secret
// from the environment.
func NewStripeProcessorFromEnv() *StripeProcessor {
	stripe.Key = env.GetEnv("STRIPE_SECRET_KEY", "")
	return &StripeProcessor{
		webhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	}
}

func (p *StripeProcessor) CreateProduct(ctx context.Context, name, description string) (string, error) {
	params := &stripe.ProductParams{
		Params: stripe.Params{Context: ctx},
		Name:   stripe.String(name),
	}
	if description != "" {
		params.Description = stripe.String(description)
	}
	prod, err := product.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create product: %w", err)
	}
	return prod.ID, nil
}

func (p *StripeProcessor) UpdateProduct(ctx context.Context, productID, name, description string) error {
	params := &stripe.ProductParams{
		Params: stripe.Params{Context: ctx},
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	if description != "" {
		params.Description = stripe.String(description)
	}
	if _, err := product.Update(productID, params); err != nil {
		return fmt.Errorf("stripe update product %s: %w", productID, err)
	}
	return nil
}

func (p *StripeProcessor) ArchiveProduct(ctx context.Context, productID string) error {
	params := &stripe.ProductParams{
		Params: stripe.Params{Context: ctx},
		Active: stripe.Bool(false),
	}
	if _, err := product.Update(productID, params); err != nil {
		if isAlreadyInactive(err) {
			return nil
		}
		return fmt.Errorf("stripe archive product %s: %w", productID, err)
	}
	return nil
}

// CreatePrice creates a one-time (non-recurring) price. Stripe prices
// are immutable once created; a price change requires a new price.
func (p *StripeProcessor) CreatePrice(ctx context.Context, productID, currency string, amountMinor int64) (string, error) {
	params := &stripe.PriceParams{
		Params:     stripe.Params{Context: ctx},
		Product:    stripe.String(productID),
		Currency:   stripe.String(strings.ToLower(currency)),
		UnitAmount: stripe.Int64(amountMinor),
	}
	pr, err := price.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create price: %w", err)
	}
	return pr.ID, nil
}

func (p *StripeProcessor) ArchivePrice(ctx context.Context, priceID string) error {
	params := &stripe.PriceParams{
		Params: stripe.Params{Context: ctx},
		Active: stripe.Bool(false),
	}
	if _, err := price.Update(priceID, params); err != nil {
		if isAlreadyInactive(err) {
			return nil
		}
		return fmt.Errorf("stripe archive price %s: %w", priceID, err)
	}
	return nil
}

func (p *StripeProcessor) CreateCustomer(ctx context.Context, email, name string, userID uint) (string, error) {
	params := &stripe.CustomerParams{
		Params: stripe.Params{
			Context: ctx,
			Metadata: map[string]string{
				"user_id": strconv.FormatUint(uint64(userID), 10),
			},
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return cust.ID, nil
}

func (p *StripeProcessor) CreatePaymentIntent(ctx context.Context, in IntentInput) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
			Metadata: map[string]string{
				"order_number": in.OrderNumber,
				"user_id":      strconv.FormatUint(uint64(in.UserID), 10),
			},
		},
		Amount:   stripe.Int64(in.AmountMinor),
		Currency: stripe.String(strings.ToLower(in.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create payment intent: %w", err)
	}
	return intentFromStripe(pi), nil
}

func (p *StripeProcessor) GetPaymentIntent(ctx context.Context, id string) (*Intent, error) {
	pi, err := paymentintent.Get(id, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("stripe get payment intent %s: %w", id, err)
	}
	return intentFromStripe(pi), nil
}

// ConstructWebhookEvent verifies the Stripe-Signature header against the
// shared secret and extracts the payment intent reference for the event
// types the reconciliation flow consumes.
func (p *StripeProcessor) ConstructWebhookEvent(payload []byte, sigHeader string) (*WebhookEvent, error) {
	if p.webhookSecret == "" {
		return nil, errors.New("stripe webhook secret not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("stripe webhook verification: %w", err)
	}

	out := &WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
		Raw:  append([]byte(nil), event.Data.Raw...),
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment_intent payload: %w", err)
		}
		out.PaymentIntentID = pi.ID
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout.session payload: %w", err)
		}
		if sess.PaymentIntent != nil {
			out.PaymentIntentID = sess.PaymentIntent.ID
		}
	}

	return out, nil
}

func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	out := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	return out
}

// isAlreadyInactive treats archiving an already-archived resource as a
// success so deactivation stays idempotent.
func isAlreadyInactive(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	if stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return true
	}
	return strings.Contains(strings.ToLower(stripeErr.Msg), "already") &&
		strings.Contains(strings.ToLower(stripeErr.Msg), "inactive")
}
