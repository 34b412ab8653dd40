package emax

import "errors"

var (
	// ErrAuth means the vendor rejected the credentials or returned a
	// login response without a token.
	ErrAuth = errors.New("authentication failed")

	// ErrTimeout means a vendor call exceeded the configured deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrMalformed means the response decoded but lacked expected fields
	// (missing content, missing token).
	ErrMalformed = errors.New("malformed response")

	// ErrVendor means the vendor returned a non-success status envelope;
	// the vendor message is included in the wrapping error.
	ErrVendor = errors.New("vendor error")

	// ErrTransport covers connection-level failures and unexpected HTTP
	// status codes.
	ErrTransport = errors.New("transport error")
)
