package pool

import "fmt"

// ConfigurationError is returned by Add when a backend cannot be resolved
// into something that can be probed.
type ConfigurationError struct {
	Address string
	Reason  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %q: %s: %v", e.Address, e.Reason, e.Err)
	}
	return fmt.Sprintf("backend %q: %s", e.Address, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
