package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"convwin/internal/gateway/handlers"
	"convwin/pkg/logger"
)

// Recovery turns a handler panic into a 500 with the standard error body.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			logger.Error().
				Interface("error", rec).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", w.Header().Get(RequestIDHeader)).
				Bytes("stack", debug.Stack()).
				Msg("Panic recovered")

			handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "internal server error")
		}()

		next.ServeHTTP(w, r)
	})
}
