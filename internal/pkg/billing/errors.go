package billing

import (
	"errors"
	"fmt"
)

var (
	ErrSignatureInvalid       = errors.New("signature_invalid")
	ErrMalformedPayload       = errors.New("malformed_payload")
	ErrProductNotFound        = errors.New("product_not_found")
	ErrInvalidCheckoutRequest = errors.New("invalid_checkout_request")
	ErrInvalidInstallmentPlan = errors.New("invalid_installment_plan")
	ErrAlreadySubscribed      = errors.New("already_subscribed")
	ErrAlreadyScheduled       = errors.New("already_scheduled")
	ErrTransientDependency    = errors.New("transient_dependency_failure")
	ErrProcessorUnavailable   = errors.New("processor_unavailable")
	ErrNotFound               = errors.New("not_found")
)

// transient marks err as retryable while keeping the original error in the chain.
func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransientDependency) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransientDependency, err)
}

// IsRetryable reports whether the caller should ask for redelivery.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientDependency)
}

// IsRejection reports whether err is a permanent rejection of the input.
func IsRejection(err error) bool {
	return errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrInvalidCheckoutRequest) ||
		errors.Is(err, ErrInvalidInstallmentPlan)
}
