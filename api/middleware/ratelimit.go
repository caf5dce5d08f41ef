package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/irsalhamdi/course-enrollment/api/web"
	"github.com/irsalhamdi/course-enrollment/api/weberr"
	"github.com/irsalhamdi/course-enrollment/core/claims"
	"github.com/irsalhamdi/course-enrollment/rate"
)

var ErrRateLimited = errors.New("too many requests, slow down")

// RateLimit throttles per principal, or per remote host for anonymous
// requests. It must run after authentication to see the principal.
func RateLimit(lim *rate.Limiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			key := clientKey(ctx, r)
			if !lim.Check(key) {
				return weberr.NewError(ErrRateLimited, ErrRateLimited.Error(), http.StatusTooManyRequests,
					weberr.WithFields(map[string]any{"client": key}))
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

func clientKey(ctx context.Context, r *http.Request) string {
	if p, err := claims.Get(ctx); err == nil {
		return "user:" + p.UserID
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
