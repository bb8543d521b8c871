package probe

import (
	"bytes"
	"net/http"
)

// Predicate decides whether a health check response counts as a pass.
type Predicate func(res *Response) bool

// StatusOK passes only on HTTP 200.
func StatusOK(res *Response) bool {
	return res.StatusCode == http.StatusOK
}

// StatusIn passes when the status code is one of codes.
func StatusIn(codes ...int) Predicate {
	accepted := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		accepted[c] = struct{}{}
	}

	return func(res *Response) bool {
		_, ok := accepted[res.StatusCode]
		return ok
	}
}

// BodyContains passes when the response body contains s.
func BodyContains(s string) Predicate {
	needle := []byte(s)
	return func(res *Response) bool {
		return bytes.Contains(res.Body, needle)
	}
}

// All passes when every predicate passes. Nil predicates are skipped.
func All(preds ...Predicate) Predicate {
	return func(res *Response) bool {
		for _, p := range preds {
			if p != nil && !p(res) {
				return false
			}
		}
		return true
	}
}

// Match builds a predicate from accepted status codes and an optional body
// substring. It returns nil when neither is set.
func Match(codes []int, bodyContains string) Predicate {
	var preds []Predicate
	if len(codes) > 0 {
		preds = append(preds, StatusIn(codes...))
	}
	if bodyContains != "" {
		preds = append(preds, BodyContains(bodyContains))
	}

	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	default:
		return All(preds...)
	}
}
