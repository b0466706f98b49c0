package admission

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes returned in the JSON body of rejected requests.
const (
	CodeForbidden           = "forbidden"
	CodeRateLimited         = "rate_limited"
	CodeServerMisconfigured = "server_misconfigured"
	CodeUnauthorized        = "unauthorized"
	CodePayloadTooLarge     = "payload_too_large"
	CodeInvalidJSON         = "invalid_json"
	CodeInternalError       = "internal_error"
)

// Stage names, in the order the pipeline runs them.
const (
	StageIPCheck        = "ip_check"
	StageRateCheck      = "rate_check"
	StageSecretCheck    = "secret_check"
	StageDeclaredSize   = "declared_size"
	StageSignatureCheck = "signature_check"
	StageSizeCheck      = "size_check"
	StageParse          = "parse"
	StageApply          = "apply"
)

var (
	ErrConfiguration        = errors.New("webhook credentials not configured")
	ErrAdmissionDenied      = errors.New("client ip not allowed")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrPayloadTooLarge      = errors.New("payload too large")
	ErrMalformedPayload     = errors.New("malformed payload")
	ErrApplierFailure       = errors.New("event applier failed")
)

// RejectError is a terminal pipeline outcome. Err is one of the sentinel
// errors above, optionally wrapping the underlying cause.
type RejectError struct {
	Status     int
	Code       string
	Stage      string
	RetryAfter int
	Err        error
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%s: %s (%d): %v", e.Stage, e.Code, e.Status, e.Err)
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

func reject(stage string, err error) *RejectError {
	r := &RejectError{Stage: stage, Err: err}
	switch {
	case errors.Is(err, ErrAdmissionDenied):
		r.Status, r.Code = fiber.StatusForbidden, CodeForbidden
	case errors.Is(err, ErrRateLimited):
		r.Status, r.Code = fiber.StatusTooManyRequests, CodeRateLimited
	case errors.Is(err, ErrConfiguration):
		r.Status, r.Code = fiber.StatusInternalServerError, CodeServerMisconfigured
	case errors.Is(err, ErrAuthenticationFailed):
		r.Status, r.Code = fiber.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, ErrPayloadTooLarge):
		r.Status, r.Code = fiber.StatusRequestEntityTooLarge, CodePayloadTooLarge
	case errors.Is(err, ErrMalformedPayload):
		r.Status, r.Code = fiber.StatusBadRequest, CodeInvalidJSON
	default:
		r.Status, r.Code = fiber.StatusInternalServerError, CodeInternalError
	}
	return r
}
