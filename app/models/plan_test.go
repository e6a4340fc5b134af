package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanBillingKind(t *testing.T) {
	tests := []struct {
		name string
		plan Plan
		want BillingKind
	}{
		{name: "zero price is free", plan: Plan{Price: 0}, want: BillingKindFree},
		{name: "zero price with skip flag stays free", plan: Plan{Price: 0, SkipExternalBilling: true}, want: BillingKindFree},
		{name: "paid with skip flag is bypass", plan: Plan{Price: 9.99, SkipExternalBilling: true}, want: BillingKindBypass},
		{name: "paid is external", plan: Plan{Price: 9.99}, want: BillingKindExternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.plan.BillingKind())
		})
	}
}

func TestPlanIsPurchasableWithoutPayment(t *testing.T) {
	assert.True(t, (&Plan{Price: 0}).IsPurchasableWithoutPayment())
	assert.True(t, (&Plan{Price: 5, SkipExternalBilling: true}).IsPurchasableWithoutPayment())
	assert.False(t, (&Plan{Price: 5}).IsPurchasableWithoutPayment())
}
