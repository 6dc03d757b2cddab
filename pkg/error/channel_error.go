package error

import (
	"fmt"
	"net/http"
)

// ChannelNotReadyError means the tenant's session is not WORKING.
type ChannelNotReadyError string

func (err ChannelNotReadyError) Error() string {
	if err == "" {
		return "whatsapp not ready"
	}
	return fmt.Sprintf("whatsapp not ready (state %s)", string(err))
}

func (err ChannelNotReadyError) ErrCode() string {
	return "CHANNEL_NOT_READY"
}

func (err ChannelNotReadyError) StatusCode() int {
	return http.StatusServiceUnavailable
}

// RecipientAddressMissingError marks an item that cannot be dispatched until an operator sets its mobile.
type RecipientAddressMissingError string

func (err RecipientAddressMissingError) Error() string {
	if err == "" {
		return "recipient address missing"
	}
	return "recipient address missing: " + string(err)
}

func (err RecipientAddressMissingError) ErrCode() string {
	return "RECIPIENT_ADDRESS_MISSING"
}

func (err RecipientAddressMissingError) StatusCode() int {
	return http.StatusUnprocessableEntity
}

// SendFailureError wraps a provider-level error raised while sending.
type SendFailureError struct {
	Err error
}

func (err SendFailureError) Error() string {
	if err.Err == nil {
		return "send failed"
	}
	return "send failed: " + err.Err.Error()
}

func (err SendFailureError) Unwrap() error {
	return err.Err
}

func (err SendFailureError) ErrCode() string {
	return "SEND_FAILURE"
}

func (err SendFailureError) StatusCode() int {
	return http.StatusBadGateway
}

// SessionInitFailureError wraps the reason a session could not be initialized.
type SessionInitFailureError struct {
	TenantID string
	Err      error
}

func (err SessionInitFailureError) Error() string {
	return fmt.Sprintf("session init failed for %s: %v", err.TenantID, err.Err)
}

func (err SessionInitFailureError) Unwrap() error {
	return err.Err
}

func (err SessionInitFailureError) ErrCode() string {
	return "SESSION_INIT_FAILURE"
}

func (err SessionInitFailureError) StatusCode() int {
	return http.StatusServiceUnavailable
}
