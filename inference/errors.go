package inference

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when a successful response body cannot be decoded.
var ErrMalformedResponse = errors.New("malformed response from inference service")

// TransportError is a failure to complete the HTTP exchange
// (connection refused, timeout, DNS, cancelled context).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServiceError is a non-success answer from the inference service.
type ServiceError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ServiceError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("inference service error (%s)", e.Status)
	}
	return fmt.Sprintf("inference service error (%s): %s", e.Status, e.Body)
}
