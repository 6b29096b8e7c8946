package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
)

// Threat-model module error codes.
const (
	ErrCodeModelNotFound       ErrorCode = "TM_001"
	ErrCodeInvalidMergeRequest ErrorCode = "TM_002"
	ErrCodeMalformedModelID    ErrorCode = "TM_003"
	ErrCodeThreatNotFound      ErrorCode = "TM_004"
	ErrCodeModelAlreadyExists  ErrorCode = "TM_005"
)

// Report module error codes.
const (
	ErrCodeTemplateNotFound       ErrorCode = "RPT_001"
	ErrCodeReportGenerationFailed ErrorCode = "RPT_002"
	ErrCodeReportExportFailed     ErrorCode = "RPT_003"
)

// Assistant / LLM provider error codes.
const (
	ErrCodeProviderUnavailable ErrorCode = "LLM_001"
	ErrCodeProviderUnsupported ErrorCode = "LLM_002"
	ErrCodeCompletionFailed    ErrorCode = "LLM_003"
)

// Compatibility aliases used by shared infrastructure code.
const (
	CodeInternal      = ErrCodeInternal
	CodeInvalidParam  = ErrCodeBadRequest
	CodeNotFound      = ErrCodeNotFound
	CodeConflict      = ErrCodeConflict
	CodeDatabaseError = ErrCodeDatabaseError
	CodeOK            = ErrorCode("OK")
	CodeUnknown       = ErrorCode("UNKNOWN")
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusInternalServerError,

	ErrCodeModelNotFound:       http.StatusNotFound,
	ErrCodeInvalidMergeRequest: http.StatusBadRequest,
	ErrCodeMalformedModelID:    http.StatusNotFound,
	ErrCodeThreatNotFound:      http.StatusNotFound,
	ErrCodeModelAlreadyExists:  http.StatusConflict,

	ErrCodeTemplateNotFound:       http.StatusNotFound,
	ErrCodeReportGenerationFailed: http.StatusInternalServerError,
	ErrCodeReportExportFailed:     http.StatusInternalServerError,

	ErrCodeProviderUnavailable: http.StatusServiceUnavailable,
	ErrCodeProviderUnsupported: http.StatusBadRequest,
	ErrCodeCompletionFailed:    http.StatusBadGateway,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",

	ErrCodeModelNotFound:       "threat model not found",
	ErrCodeInvalidMergeRequest: "invalid merge request",
	ErrCodeMalformedModelID:    "malformed threat model identifier",
	ErrCodeThreatNotFound:      "threat not found",
	ErrCodeModelAlreadyExists:  "threat model already exists",

	ErrCodeTemplateNotFound:       "report template not found",
	ErrCodeReportGenerationFailed: "report generation failed",
	ErrCodeReportExportFailed:     "report export failed",

	ErrCodeProviderUnavailable: "LLM provider unavailable",
	ErrCodeProviderUnsupported: "unsupported LLM provider",
	ErrCodeCompletionFailed:    "chat completion failed",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
