package davsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/syncconfig"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/transport"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/webdav"
)

// TestConnection probes the account root with a depth-0 PROPFIND and returns
// a classified, user-facing result. It never panics or returns an error: all
// failures are described in the result.
func (m *Manager) TestConnection(ctx context.Context, cfg syncconfig.WebDAVConfig) ConnectionResult {
	if err := cfg.Validate(); err != nil {
		return ConnectionResult{
			Outcome: OutcomeInvalidConfig,
			Message: err.Error(),
			Hint:    "Fill in the server URL, username and password.",
		}
	}
	cfg.Normalize()

	endpoint := cfg.DAVRoot()
	m.addLog(SeverityInfo, "Testing connection", map[string]any{"endpoint": endpoint})

	client := webdav.New(m.transport, cfg.Username, cfg.Secret)
	resp, err := client.Propfind(ctx, endpoint, "0")
	if err == nil {
		err = resp.Err()
	}

	res := classifyConnection(err)
	res.Endpoint = endpoint
	if res.Success {
		msg := "Connection successful"
		if resp.Via != "" {
			msg += " (via " + resp.Via + ")"
		}
		res.Message = msg
		m.addLog(SeveritySuccess, msg, map[string]any{"endpoint": endpoint})
	} else {
		m.addLog(SeverityError, res.Message, map[string]any{"endpoint": endpoint, "status": res.StatusCode, "error": err.Error()})
	}
	return res
}

func classifyConnection(err error) ConnectionResult {
	if err == nil {
		return ConnectionResult{Success: true, Outcome: OutcomeSuccess}
	}

	var tErr *transport.Error
	if !errors.As(err, &tErr) {
		return ConnectionResult{
			Outcome: OutcomeNetworkError,
			Message: "Network error: " + err.Error(),
			Hint:    "Check your internet connection and the server URL.",
		}
	}

	switch tErr.Kind {
	case transport.KindTimeout:
		return ConnectionResult{
			Outcome: OutcomeTimeout,
			Message: "Connection timed out. The server did not respond in time.",
			Hint:    "Check that the server is reachable and try again.",
		}
	case transport.KindNetwork:
		return ConnectionResult{
			Outcome: OutcomeNetworkError,
			Message: "Network error: the server could not be reached (" + tErr.Detail + ")",
			Hint:    "Check the server URL. Proxy fallback is attempted automatically when enabled.",
		}
	}

	res := ConnectionResult{StatusCode: tErr.StatusCode}
	switch tErr.StatusCode {
	case http.StatusUnauthorized:
		res.Outcome = OutcomeAuthFailed
		res.Message = "Authentication failed. Please verify your credentials (username and password)."
		res.Hint = "If two-factor authentication is enabled, use an app password."
	case http.StatusNotFound:
		res.Outcome = OutcomeNotFound
		res.Message = "WebDAV endpoint not found. Check the server URL."
		res.Hint = "The URL must point at the server root; /remote.php/dav is appended automatically."
	case http.StatusForbidden:
		res.Outcome = OutcomeForbidden
		res.Message = "Access denied by the server."
		res.Hint = "Check the account permissions or create an app password."
	case http.StatusMethodNotAllowed:
		res.Outcome = OutcomeMethodNotAllowed
		res.Message = "The server rejected PROPFIND. WebDAV may be disabled."
		res.Hint = "Enable WebDAV on the server or check the URL."
	default:
		res.Outcome = OutcomeHTTPError
		res.Message = fmt.Sprintf("Server error: HTTP %d", tErr.StatusCode)
		res.Hint = "Try again later or check the server logs."
	}
	return res
}
