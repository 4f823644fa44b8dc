package gateway

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutSignature(t *testing.T) {
	sig := CheckoutSignature("secret", "FEE-1", "pay_1")
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, CheckoutSignature("secret", "FEE-1", "pay_1"))

	assert.True(t, VerifyCheckoutSignature("secret", "FEE-1", "pay_1", sig))
	assert.True(t, VerifyCheckoutSignature("secret", "FEE-1", "pay_1", strings.ToUpper(sig)))
	assert.False(t, VerifyCheckoutSignature("secret", "FEE-1", "pay_2", sig))
	assert.False(t, VerifyCheckoutSignature("other", "FEE-1", "pay_1", sig))
	assert.False(t, VerifyCheckoutSignature("", "FEE-1", "pay_1", CheckoutSignature("", "FEE-1", "pay_1")))
	assert.False(t, VerifyCheckoutSignature("secret", "FEE-1", "pay_1", ""))

	// separator prevents ("FEE-1|p", "ay") colliding with ("FEE-1", "p|ay")
	assert.NotEqual(t, CheckoutSignature("s", "ab", "c"), CheckoutSignature("s", "a", "bc"))
}

func TestMidtransSignature(t *testing.T) {
	sum := sha512.Sum512([]byte("FEE-1" + "200" + "3600.00" + "SB-key"))
	want := hex.EncodeToString(sum[:])

	assert.Equal(t, want, MidtransSignature("FEE-1", "200", "3600.00", "SB-key"))
	assert.True(t, VerifyMidtransSignature("FEE-1", "200", "3600.00", "SB-key", want))
	assert.False(t, VerifyMidtransSignature("FEE-1", "200", "3600.01", "SB-key", want))
	assert.False(t, VerifyMidtransSignature("FEE-1", "200", "3600.00", "", want))
}

func TestNewOrderID(t *testing.T) {
	a, b := NewOrderID(""), NewOrderID("fee")
	assert.True(t, strings.HasPrefix(a, "FEE-"))
	assert.True(t, strings.HasPrefix(b, "FEE-"))
	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, len(a), 50)
}

func TestFakeGateway(t *testing.T) {
	f := &Fake{}
	o, err := f.CreateOrder(context.Background(), OrderRequest{OrderID: "FEE-1", Amount: decimal.RequireFromString("3600.00"), Currency: "IDR"})
	require.NoError(t, err)
	assert.Equal(t, "FEE-1", o.OrderID)
	assert.True(t, decimal.RequireFromString("3600").Equal(o.Amount))
	assert.Len(t, f.Orders, 1)

	f.Err = errors.New("503 from provider")
	_, err = f.CreateOrder(context.Background(), OrderRequest{OrderID: "FEE-2"})
	assert.Error(t, err)
}

func TestSnapRejectsFractionalAmounts(t *testing.T) {
	s := NewSnap("SB-Mid-server-test", false)
	_, err := s.CreateOrder(context.Background(), OrderRequest{OrderID: "FEE-1", Amount: decimal.RequireFromString("10.50")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Contains(t, err.Error(), "whole amount")

	_, err = s.CreateOrder(context.Background(), OrderRequest{OrderID: "FEE-1", Amount: decimal.Zero})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.NoError(t, s.ValidateAmount(decimal.RequireFromString("3600.00")))
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "School fee", truncate("School fee", 50))
	assert.Equal(t, "abc", truncate("abcdef", 3))

	name := "School fee " + strings.Repeat("é", 30)
	got := truncate(name, 50)
	assert.LessOrEqual(t, len(got), 50)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasPrefix(name, got))
	assert.Equal(t, "School fee "+strings.Repeat("é", 19), got)
}
