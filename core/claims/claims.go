// Package claims carries the authenticated principal from the auth
// middleware to the handlers. Services never read it from a context; they
// receive it as an argument.
package claims

import (
	"context"
	"errors"
)

const (
	RoleEducator = "educator"
	RoleStudent  = "student"
)

var ErrMissing = errors.New("principal missing from context")

type Principal struct {
	UserID   string
	Role     string
	Name     string
	Email    string
	ImageURL string
}

func (p Principal) IsEducator() bool {
	return p.Role == RoleEducator
}

type ctxKey int

const principalKey ctxKey = 1

func Set(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func Get(ctx context.Context) (Principal, error) {
	v, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return Principal{}, ErrMissing
	}
	return v, nil
}
