package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/irsalhamdi/course-enrollment/api/web"
	"github.com/irsalhamdi/course-enrollment/api/weberr"
	"github.com/irsalhamdi/course-enrollment/core/claims"
)

var (
	ErrNoToken     = errors.New("missing bearer token")
	ErrNotEducator = errors.New("educator role required")
)

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// Authenticate rejects requests without a valid bearer token.
func Authenticate(v Verifier) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			tok := bearer(r)
			if tok == "" {
				return weberr.NotAuthorized(ErrNoToken)
			}

			p, err := v.Verify(ctx, tok)
			if err != nil {
				return weberr.NotAuthorized(err)
			}

			return handler(claims.Set(ctx, p), w, r)
		}
		return h
	}
	return m
}

// Optional attaches the principal when a valid token is sent and lets
// anonymous requests through otherwise.
func Optional(v Verifier) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if tok := bearer(r); tok != "" {
				if p, err := v.Verify(ctx, tok); err == nil {
					ctx = claims.Set(ctx, p)
				}
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

// Educator must run after Authenticate.
func Educator() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			p, err := claims.Get(ctx)
			if err != nil {
				return weberr.NotAuthorized(err)
			}
			if !p.IsEducator() {
				return weberr.Forbidden(ErrNotEducator)
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
