package openai

import (
	"errors"
	"net/http"

	"github.com/openai/openai-go"

	"github.com/davidbz/hearth/internal/domain"
)

// OpenAI error codes that need provider-specific disambiguation beyond the
// generic HTTP status mapping.
const (
	codeInsufficientQuota      = "insufficient_quota"
	codeContentPolicyViolation = "content_policy_violation"
	codeModelNotFound          = "model_not_found"
)

// classify maps an SDK failure into the domain taxonomy. API errors carry a
// status and an OpenAI error code; everything else (transport failures,
// context cancellation) goes through the generic classifier.
func classify(err error) *domain.Error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return classifyAPIError(apierr.StatusCode, apierr.Code, err)
	}
	return domain.Classify(providerName, err)
}

// classifyAPIError resolves status plus OpenAI error code into a taxonomy
// code. A 429 means rate limiting unless the error code says the account is
// out of quota, which retrying can never fix.
func classifyAPIError(status int, code string, cause error) *domain.Error {
	switch {
	case status == http.StatusTooManyRequests && code == codeInsufficientQuota:
		e := domain.ClassifyStatus(providerName, status, cause)
		e.Code = domain.ErrorCodeQuotaExceeded
		e.Retryable = false
		return e
	case code == codeContentPolicyViolation:
		e := domain.ClassifyStatus(providerName, status, cause)
		e.Code = domain.ErrorCodeContentFiltered
		e.Retryable = false
		return e
	case code == codeModelNotFound:
		e := domain.ClassifyStatus(providerName, status, cause)
		e.Code = domain.ErrorCodeModelNotFound
		e.Retryable = false
		return e
	default:
		return domain.ClassifyStatus(providerName, status, cause)
	}
}
