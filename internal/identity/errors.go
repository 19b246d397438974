package identity

import "fmt"

// Provider error codes the gateway knows how to translate. Anything else
// falls through to the generic message.
const (
	codeInvalidPassword     = "INVALID_PASSWORD"
	codeInvalidCredentials  = "INVALID_LOGIN_CREDENTIALS"
	codeEmailNotFound       = "EMAIL_NOT_FOUND"
	codeEmailExists         = "EMAIL_EXISTS"
	codeInvalidEmail        = "INVALID_EMAIL"
	codeWeakPassword        = "WEAK_PASSWORD"
	codeTooManyAttempts     = "TOO_MANY_ATTEMPTS_TRY_LATER"
	codeCredentialTooOld    = "CREDENTIAL_TOO_OLD_LOGIN_AGAIN"
	codeTokenExpired        = "TOKEN_EXPIRED"
	codeUserDisabled        = "USER_DISABLED"
	codeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
)

// Error is what the gateway returns for provider failures: the raw provider
// code for programmatic branching and a fixed user-facing message. Nothing
// provider-shaped escapes the gateway in any other form.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("identity: %s (%s)", e.Message, e.Code)
}

// friendlyMessage maps a provider error code to its user-facing message.
func friendlyMessage(code string) string {
	switch code {
	case codeInvalidPassword, codeInvalidCredentials:
		return "Incorrect email or password. Please try again."
	case codeEmailNotFound:
		return "No account exists with this email address."
	case codeEmailExists:
		return "An account with this email address already exists."
	case codeInvalidEmail:
		return "That email address is not valid."
	case codeWeakPassword:
		return "Password is too weak. Please use at least 6 characters."
	case codeTooManyAttempts:
		return "Too many attempts. Please wait a moment and try again."
	case codeCredentialTooOld, codeTokenExpired, codeInvalidRefreshToken:
		return "Your session has expired. Please sign in again."
	case codeUserDisabled:
		return "This account has been disabled."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

func providerError(code string) *Error {
	return &Error{Code: code, Message: friendlyMessage(code)}
}
