package readarr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

const maxErrorBody = 200

// RemoteError is a transport failure or non-2xx answer from a backend
type RemoteError struct {
	Instance   string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Unreachable():
		return fmt.Sprintf("%s: unable to reach backend, check URL/network", e.Instance)
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return fmt.Sprintf("%s: API key rejected (HTTP %d)", e.Instance, e.StatusCode)
	case e.StatusCode > 0 && e.Message != "":
		return fmt.Sprintf("%s %s failed: HTTP %d: %s", e.Instance, e.Op, e.StatusCode, e.Message)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s %s failed: HTTP %d", e.Instance, e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s %s failed: %v", e.Instance, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s %s failed", e.Instance, e.Op)
	}
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Unreachable reports whether the backend could not be connected to at all
func (e *RemoteError) Unreachable() bool {
	if e.Err == nil {
		return false
	}
	if errors.Is(e.Err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(e.Err, &dnsErr)
}

// Timeout reports whether the call ran out of time
func (e *RemoteError) Timeout() bool {
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// remoteMessage pulls a human message out of an error body: JSON message, title or
// errorMessage fields (also inside an array of validation failures), else the
// trimmed body itself
func remoteMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	pick := func(m map[string]any) string {
		for _, k := range []string{"message", "errorMessage", "title"} {
			if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		return ""
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		if msg := pick(obj); msg != "" {
			return msg
		}
	}
	var arr []map[string]any
	if err := json.Unmarshal(body, &arr); err == nil {
		var msgs []string
		for _, m := range arr {
			if msg := pick(m); msg != "" {
				msgs = append(msgs, msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}

	if len(trimmed) > maxErrorBody {
		trimmed = trimmed[:maxErrorBody] + "..."
	}
	return trimmed
}
