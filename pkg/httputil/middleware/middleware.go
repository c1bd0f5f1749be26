// Package middleware provides the HTTP middleware of the view query server:
// request ids, access logging, CORS, IP allow-listing and panic recovery.
package middleware

import (
	"net/http"

	"github.com/edgeflare/pgview/pkg/httputil"
	"go.uber.org/zap"
)

// Chain applies one or more middleware functions to a handler in the order they were provided.
// The first middleware in the list will be the outermost wrapper (executed first).
func Chain(h http.Handler, middlewares ...httputil.Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// StackOptions configures Stack.
type StackOptions struct {
	Logger *zap.Logger
	// CORS nil uses the default CORS options.
	CORS      *CORSOptions
	Allowlist IPAllowlistOptions
	// DisableAccessLog drops the per-request "response" entry.
	DisableAccessLog bool
}

// Stack returns the server's middleware, outermost first: Recover, RequestID,
// access Logger, CORS, IPAllowlist.
func Stack(opts StackOptions) ([]httputil.Middleware, error) {
	allowlist, err := IPAllowlist(IPAllowlistOptions{
		Logger:   opts.Logger,
		Allowed:  opts.Allowlist.Allowed,
		AllowTLS: opts.Allowlist.AllowTLS,
	})
	if err != nil {
		return nil, err
	}

	stack := []httputil.Middleware{Recover(opts.Logger), RequestID}
	if !opts.DisableAccessLog {
		stack = append(stack, LoggerWithOptions(&LoggerOptions{Logger: opts.Logger}))
	}
	return append(stack, CORSWithOptions(opts.CORS), allowlist), nil
}
