package finerr

import (
	"context"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestStatusAndCode(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"validation", Validation("totalFee must be > 0"), fiber.StatusBadRequest, "VALIDATION_ERROR", false},
		{"not found", NotFound("fee ledger", "abc"), fiber.StatusNotFound, "NOT_FOUND", false},
		{"verification", Verification("signature mismatch"), fiber.StatusUnprocessableEntity, "VERIFICATION_ERROR", false},
		{"gateway", Gateway(errors.New("dial tcp"), "create order"), fiber.StatusBadGateway, "GATEWAY_ERROR", true},
		{"timeout", Timeout("verify", context.DeadlineExceeded), fiber.StatusServiceUnavailable, "TRANSACTION_TIMEOUT", true},
		{"wrapped validation", Wrap(Validation("bad"), "create ledger"), fiber.StatusBadRequest, "VALIDATION_ERROR", false},
		{"fiber forbidden", fiber.NewError(fiber.StatusForbidden, "nope"), fiber.StatusForbidden, "FORBIDDEN", false},
		{"plain", errors.New("boom"), fiber.StatusInternalServerError, "INTERNAL_ERROR", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, Status(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestTimeoutUnwrapsCause(t *testing.T) {
	err := Timeout("verify", context.DeadlineExceeded)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "verify: transaction timed out: context deadline exceeded", err.Error())
}

func TestPublicMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "internal server error", PublicMessage(errors.New("pq: relation does not exist")))
	assert.Equal(t, "fee ledger abc not found", PublicMessage(NotFound("fee ledger", "abc")))
	assert.Contains(t, PublicMessage(Gateway(errors.New("503"), "create order")), "create order")
}
