package server

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork covers dial and transport failures during connect.
	ErrNetwork = errors.New("network error")
	// ErrAuth is returned when the server rejected every credential offered.
	ErrAuth = errors.New("authentication failed")
	// ErrHostKey is returned when the host key does not match known_hosts.
	ErrHostKey = errors.New("host key verification failed")
	ErrUpload  = errors.New("upload failed")
	ErrClosed  = errors.New("session closed")
)

// ConnectError carries the target of a failed connection attempt.
type ConnectError struct {
	Host string
	User string
	Kind error
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s@%s: %v: %v", e.User, e.Host, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
