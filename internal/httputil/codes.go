package httputil

import "errors"

const maxBodyBytes = 1 << 20

var errTrailingData = errors.New("request body must contain a single JSON object")

// Machine-readable error codes carried in ErrorResponse.Code.
const (
	CodeInvalidRequestBody = "INVALID_REQUEST_BODY"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	CodeEmailAlreadyExists = "EMAIL_ALREADY_EXISTS"
	CodeUsernameTaken      = "USERNAME_TAKEN"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeAlreadyVerified    = "EMAIL_ALREADY_VERIFIED"
	CodeInvalidCode        = "INVALID_VERIFICATION_CODE"
	CodeCodeExpired        = "VERIFICATION_CODE_EXPIRED"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeCooldownActive     = "COOLDOWN_ACTIVE"
	CodeMissingAuth        = "MISSING_AUTHENTICATION"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
)
