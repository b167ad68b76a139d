package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/kiranshivaraju/kagi/internal/api/response"
	"github.com/kiranshivaraju/kagi/internal/auth"
)

const internalErrorMessage = "Internal server error"

// Handler is a protected operation. It authenticates through auth.Gate and
// returns failures instead of writing them.
type Handler func(w http.ResponseWriter, r *http.Request) error

// WithAuth adapts h to http.HandlerFunc. An *auth.Error becomes its own status
// and message; any other error or panic becomes a 500 carrying the error's
// message, or "Internal server error" when there is none.
func WithAuth(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			slog.Error("panic recovered",
				"error", v,
				"stack", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
			)
			msg := internalErrorMessage
			if err, ok := v.(error); ok && err.Error() != "" {
				msg = err.Error()
			}
			response.Error(w, http.StatusInternalServerError, msg)
		}()

		if err := h(w, r); err != nil {
			writeError(w, r, err)
		}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *auth.Error
	if errors.As(err, &authErr) {
		response.Error(w, authErr.Status, authErr.Message)
		return
	}

	slog.Error("request failed",
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
	)
	msg := err.Error()
	if msg == "" {
		msg = internalErrorMessage
	}
	response.Error(w, http.StatusInternalServerError, msg)
}
