package error

import "net/http"

// UnauthorizedError is returned when a tenant touches data it does not own.
// No state is changed when it is returned.
type UnauthorizedError string

func (err UnauthorizedError) Error() string {
	if err == "" {
		return "unauthorized"
	}
	return string(err)
}

func (err UnauthorizedError) ErrCode() string {
	return "UNAUTHORIZED"
}

func (err UnauthorizedError) StatusCode() int {
	return http.StatusForbidden
}

// AuthError is returned for missing, invalid or expired credentials.
type AuthError string

func (err AuthError) Error() string {
	if err == "" {
		return "authentication required"
	}
	return string(err)
}

func (err AuthError) ErrCode() string {
	return "AUTHENTICATION_FAILED"
}

func (err AuthError) StatusCode() int {
	return http.StatusUnauthorized
}
