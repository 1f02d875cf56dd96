package gomtl

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures into the library's taxonomy.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConfiguration
	KindAuthentication
	KindAPI
	KindRateLimitExceeded
	KindInvalidResponse
	KindEmptyTranslation
	KindUnsupportedLanguage
	KindValidation
	KindCache
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindAPI:
		return "api"
	case KindRateLimitExceeded:
		return "rate_limit_exceeded"
	case KindInvalidResponse:
		return "invalid_response"
	case KindEmptyTranslation:
		return "empty_translation"
	case KindUnsupportedLanguage:
		return "unsupported_language"
	case KindValidation:
		return "validation"
	case KindCache:
		return "cache"
	default:
		return "unknown"
	}
}

// ConfigurationError indicates the client cannot be used as configured (e.g. missing API key).
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// AuthenticationError is returned when the service rejects the API key (HTTP 401).
type AuthenticationError struct {
	Message    string
	StatusCode int
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// APIError covers non-retried HTTP failures and low-level transport errors.
type APIError struct {
	Message    string
	StatusCode int    // 0 when the request never produced a response
	Body       string // truncated response body
	Cause      error
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("api error: %s: %v", msg, e.Cause)
	}
	return fmt.Sprintf("api error: %s", msg)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// RateLimitError is returned once the transport's delay schedule is exhausted.
type RateLimitError struct {
	Retries int
	From    string
	To      string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d retries", e.Retries)
}

// InvalidResponseError indicates the model output could not be decoded into the expected envelope.
type InvalidResponseError struct {
	Message  string
	Response string         // redacted, truncated raw response
	Details  map[string]any // diagnostic context (lengths, snippet)
	Cause    error
}

func (e *InvalidResponseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid response: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid response: %s", e.Message)
}

func (e *InvalidResponseError) Unwrap() error {
	return e.Cause
}

// EmptyTranslationError indicates a well-formed envelope whose payload was empty.
type EmptyTranslationError struct {
	Message  string
	Response string
}

func (e *EmptyTranslationError) Error() string {
	if e.Message == "" {
		return "Empty translation received"
	}
	return e.Message
}

// UnsupportedLanguageError carries the normalized locale that is not supported.
type UnsupportedLanguageError struct {
	Locale string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language: %q", e.Locale)
}

// ValidationError reports invalid caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid argument: %s", e.Message)
	}
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Message)
}

// CacheError indicates a cache operation failure.
type CacheError struct {
	Message string
	Cause   error
}

func (e *CacheError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cache error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("cache error: %s", e.Message)
}

func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Kind returns the taxonomy bucket of err.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var (
		configErr      *ConfigurationError
		authErr        *AuthenticationError
		apiErr         *APIError
		rateErr        *RateLimitError
		invalidErr     *InvalidResponseError
		emptyErr       *EmptyTranslationError
		unsupportedErr *UnsupportedLanguageError
		validationErr  *ValidationError
		cacheErr       *CacheError
	)

	switch {
	case errors.As(err, &configErr):
		return KindConfiguration
	case errors.As(err, &authErr):
		return KindAuthentication
	case errors.As(err, &rateErr):
		return KindRateLimitExceeded
	case errors.As(err, &invalidErr):
		return KindInvalidResponse
	case errors.As(err, &emptyErr):
		return KindEmptyTranslation
	case errors.As(err, &unsupportedErr):
		return KindUnsupportedLanguage
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &apiErr):
		return KindAPI
	case errors.As(err, &cacheErr):
		return KindCache
	}
	return KindUnknown
}

// IsContentError reports whether err means the call succeeded but its content was unusable.
func IsContentError(err error) bool {
	k := Kind(err)
	return k == KindInvalidResponse || k == KindEmptyTranslation
}

// IsRateLimited reports whether err is a RateLimitError.
func IsRateLimited(err error) bool {
	return Kind(err) == KindRateLimitExceeded
}
