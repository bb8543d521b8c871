package backend

import (
	"fmt"
	"strings"
)

type State int

const (
	StateNew State = iota
	StateHealthy
	StateUnhealthy
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateHealthy:
		return "HEALTHY"
	case StateUnhealthy:
		return "UNHEALTHY"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseState matches name against the canonical state names, ignoring case.
func ParseState(name string) (State, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "NEW":
		return StateNew, nil
	case "HEALTHY":
		return StateHealthy, nil
	case "UNHEALTHY":
		return StateUnhealthy, nil
	default:
		return 0, fmt.Errorf("unknown backend state %q", name)
	}
}
