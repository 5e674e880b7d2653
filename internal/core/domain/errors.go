package domain

import "errors"

// ErrOffline is returned when the connectivity probe reports no network.
var ErrOffline = errors.New("device is offline")

// ErrorKind is the classification bucket assigned to a raw failure.
type ErrorKind string

const (
	ErrorKindNetwork     ErrorKind = "network_error"
	ErrorKindTimeout     ErrorKind = "timeout_error"
	ErrorKindRateLimit   ErrorKind = "rate_limit_error"
	ErrorKindAuth        ErrorKind = "auth_error"
	ErrorKindServer      ErrorKind = "server_error"
	ErrorKindDataParsing ErrorKind = "data_parsing_error"
	ErrorKindOffline     ErrorKind = "offline_error"
	ErrorKindUnknown     ErrorKind = "unknown_error"
)

// ErrorKinds lists every kind in declaration order.
var ErrorKinds = []ErrorKind{
	ErrorKindNetwork,
	ErrorKindTimeout,
	ErrorKindRateLimit,
	ErrorKindAuth,
	ErrorKindServer,
	ErrorKindDataParsing,
	ErrorKindOffline,
	ErrorKindUnknown,
}
