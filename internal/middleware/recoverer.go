package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/script-executor/internal/apperror"
	"github.com/sakif/script-executor/internal/respond"
)

// Recoverer turns a panic in a handler into the standard InternalServerError
// body instead of chi's plain-text 500, so callers always get JSON back.
//
// http.ErrAbortHandler is re-panicked; net/http uses it to abort a response
// on purpose.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				logger.Error("panic while handling request",
					slog.String("request_id", chimiddleware.GetReqID(r.Context())),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
				)
				// Upgrade requests have no body to speak of.
				if r.Header.Get("Connection") != "Upgrade" {
					respond.Error(w, apperror.Internal(respond.InternalMessage))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
