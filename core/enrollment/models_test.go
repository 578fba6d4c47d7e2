package enrollment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCoupon_Redeemable(t *testing.T) {
	now := time.Now()
	past, future := now.Add(-time.Minute), now.Add(time.Minute)

	tests := []struct {
		name   string
		coupon Coupon
		want   bool
	}{
		{name: "inactive", coupon: Coupon{IsActive: false}, want: false},
		{name: "active", coupon: Coupon{IsActive: true}, want: true},
		{name: "expired", coupon: Coupon{IsActive: true, ExpiresAt: &past}, want: false},
		{name: "expires at now", coupon: Coupon{IsActive: true, ExpiresAt: &now}, want: false},
		{name: "not expired yet", coupon: Coupon{IsActive: true, ExpiresAt: &future}, want: true},
		{name: "exhausted", coupon: Coupon{IsActive: true, MaxRedemptions: 2, Redemptions: 2}, want: false},
		{name: "redemptions left", coupon: Coupon{IsActive: true, MaxRedemptions: 2, Redemptions: 1}, want: true},
		{name: "unlimited", coupon: Coupon{IsActive: true, Redemptions: 1000}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.coupon.Redeemable(now))
		})
	}
}

func TestCoupon_Discount(t *testing.T) {
	tests := []struct {
		name     string
		coupon   Coupon
		subtotal int64
		want     int64
	}{
		{name: "percent", coupon: Coupon{PercentOff: 50}, subtotal: 5000, want: 2500},
		{name: "percent rounds down", coupon: Coupon{PercentOff: 33}, subtotal: 1001, want: 330},
		{name: "full percent", coupon: Coupon{PercentOff: 100}, subtotal: 5000, want: 5000},
		{name: "amount", coupon: Coupon{AmountOff: 1500}, subtotal: 5000, want: 1500},
		{name: "amount capped", coupon: Coupon{AmountOff: 9000}, subtotal: 5000, want: 5000},
		{name: "free course", coupon: Coupon{AmountOff: 1500}, subtotal: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.coupon.Discount(tt.subtotal))
		})
	}
}

func TestValidateDiscount(t *testing.T) {
	assert.NoError(t, validateDiscount(10, 0))
	assert.NoError(t, validateDiscount(0, 10))
	assert.Error(t, validateDiscount(0, 0))
	assert.Error(t, validateDiscount(10, 10))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SPRING_24", normalizeCode("  spring_24 "))
}

func TestEnrollment_IsLive(t *testing.T) {
	assert.True(t, Enrollment{Status: StatusActive}.IsLive())
	assert.True(t, Enrollment{Status: StatusCompleted}.IsLive())
	assert.False(t, Enrollment{Status: StatusCancelled}.IsLive())
}
