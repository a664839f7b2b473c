// Package httpmiddleware provides composable net/http middleware: panic
// recovery, CORS, request ids, request logging, and rate limiting.
package httpmiddleware

import "net/http"

// Middleware wraps an http.Handler with additional behaviour.
type Middleware func(http.Handler) http.Handler

// Wrap applies the middlewares to next so that the first middleware in the
// list is the outermost one.
func Wrap(next http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		next = mws[i](next)
	}
	return next
}
