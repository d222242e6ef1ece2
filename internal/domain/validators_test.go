package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePositiveAmount(t *testing.T) {
	assert.NoError(t, ValidatePositiveAmount(1))
	assert.NoError(t, ValidatePositiveAmount(1_000_000))

	for _, amount := range []int64{0, -1, -500} {
		err := ValidatePositiveAmount(amount)
		require.Error(t, err)

		var appErr *AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "INVALID_AMOUNT", appErr.Code)
		assert.Equal(t, 400, appErr.Status)
	}
}

func TestValidateNonNegativeAmount(t *testing.T) {
	// Zero is a legal payout for a lost round.
	assert.NoError(t, ValidateNonNegativeAmount(0))
	assert.NoError(t, ValidateNonNegativeAmount(250))
	assert.Error(t, ValidateNonNegativeAmount(-1))
}

func TestValidateRequired(t *testing.T) {
	assert.NoError(t, ValidateRequired("sessionToken", "abc"))

	err := ValidateRequired("transactionId", "")
	require.Error(t, err)

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Contains(t, appErr.Message, "transactionId")
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := ErrInternal("something failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "INTERNAL_ERROR")
	assert.Contains(t, err.Error(), "boom")
}
