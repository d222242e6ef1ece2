package domain

// ValidatePositiveAmount rejects debit amounts <= 0.
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount("amount must be positive")
	}
	return nil
}

// ValidateNonNegativeAmount rejects credit amounts < 0. Zero is legal.
func ValidateNonNegativeAmount(amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount("amount must not be negative")
	}
	return nil
}

// ValidateRequired rejects empty required request fields.
func ValidateRequired(field, value string) error {
	if value == "" {
		return ErrValidation(field + " is required")
	}
	return nil
}
