package classify

import "github.com/vietddude/metalsync/internal/core/domain"

// Info is the user-facing description of an ErrorKind.
type Info struct {
	Kind    domain.ErrorKind `json:"kind"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Action  string           `json:"action"`
}

var infoTable = map[domain.ErrorKind]Info{
	domain.ErrorKindNetwork: {
		Title:   "Connection Problem",
		Message: "Please check your internet connection and try again.",
		Action:  "Retry",
	},
	domain.ErrorKindServer: {
		Title:   "Service Unavailable",
		Message: "The metal prices service is temporarily unavailable.",
		Action:  "Try Again",
	},
	domain.ErrorKindTimeout: {
		Title:   "Request Timeout",
		Message: "The request took too long to complete. Please try again.",
		Action:  "Retry",
	},
	domain.ErrorKindRateLimit: {
		Title:   "Too Many Requests",
		Message: "You have made too many requests. Please wait a moment and try again.",
		Action:  "Wait & Retry",
	},
	domain.ErrorKindAuth: {
		Title:   "Authentication Failed",
		Message: "There was a problem with the API authentication.",
		Action:  "Contact Support",
	},
	domain.ErrorKindDataParsing: {
		Title:   "Data Error",
		Message: "There was a problem processing the metal price data.",
		Action:  "Retry",
	},
	domain.ErrorKindOffline: {
		Title:   "You're Offline",
		Message: "Please check your internet connection to get live prices.",
		Action:  "Check Connection",
	},
	domain.ErrorKindUnknown: {
		Title:   "Something Went Wrong",
		Message: "An unexpected error occurred. Please try again.",
		Action:  "Retry",
	},
}

// InfoFor returns the static metadata for kind. Unknown kinds map to UnknownError.
func InfoFor(kind domain.ErrorKind) Info {
	info, ok := infoTable[kind]
	if !ok {
		kind = domain.ErrorKindUnknown
		info = infoTable[kind]
	}
	info.Kind = kind
	return info
}

// ErrorInfo classifies err and returns its metadata.
func ErrorInfo(err error) Info {
	return InfoFor(Classify(err))
}
