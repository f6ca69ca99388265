package domain

import "errors"

// Validation and parse failures shared by the inbound receivers.
// Delivery failures carry more context and live with the Discord client.
var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrBadSignature     = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed event payload")
)
