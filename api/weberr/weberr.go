// Package weberr decorates errors with what the HTTP layer needs: the body
// and status to send back and the fields to log.
package weberr

import "errors"

type Opt func(error) error

func Wrap(err error, opts ...Opt) error {
	for _, opt := range opts {
		err = opt(err)
	}
	return err
}

// WithResponse sets the body and status the Errors middleware renders.
// The outermost response wins.
func WithResponse(body any, status int) Opt {
	return func(err error) error {
		return &responseError{error: err, body: body, status: status}
	}
}

func WithFields(fields map[string]any) Opt {
	return func(err error) error {
		return &fieldsError{error: err, fields: fields}
	}
}

func Response(err error) (body any, status int, ok bool) {
	var re *responseError
	if !errors.As(err, &re) {
		return nil, 0, false
	}
	return re.body, re.status, true
}

// Fields collects the log fields of every layer in the chain. Outer layers
// override inner ones on key clashes.
func Fields(err error) (map[string]any, bool) {
	var layers []map[string]any
	for e := err; e != nil; e = errors.Unwrap(e) {
		if fe, ok := e.(*fieldsError); ok {
			layers = append(layers, fe.fields)
		}
	}
	if len(layers) == 0 {
		return nil, false
	}

	out := make(map[string]any)
	for i := len(layers) - 1; i >= 0; i-- {
		for k, v := range layers[i] {
			out[k] = v
		}
	}
	return out, true
}

type responseError struct {
	error
	body   any
	status int
}

func (e *responseError) Unwrap() error { return e.error }

type fieldsError struct {
	error
	fields map[string]any
}

func (e *fieldsError) Unwrap() error { return e.error }
