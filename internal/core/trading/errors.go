package trading

import "fmt"

// ConfigurationError reports a trade intent that cannot be acted on.
// No network call is made once one of these is returned.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// SigningError reports a missing or malformed API secret.
type SigningError struct {
	Reason string
}

func (e *SigningError) Error() string {
	return "signing: " + e.Reason
}

// TransportError wraps a network/TLS failure reaching the exchange.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ExchangeRejection is any response the exchange sent back that is not a
// success for the operation: non-200 status, a missing order id, or a fill
// without positive quantity/price. Body holds the raw response.
type ExchangeRejection struct {
	Op     string
	Status int
	Code   int    // exchange error code, 0 when absent
	Msg    string // exchange error message, empty when absent
	Reason string
	Body   string
}

func (e *ExchangeRejection) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("exchange rejected %s: %s (status=%d code=%d msg=%q)", e.Op, e.Reason, e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("exchange rejected %s: %s (status=%d body=%s)", e.Op, e.Reason, e.Status, e.Body)
}
