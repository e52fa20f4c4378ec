package service

import (
	"errors"
	"fmt"

	"github.com/TheusHen/laminate/laminate"
	"github.com/TheusHen/laminate/laminate/protocol"
)

var (
	ErrRateLimited = errors.New("service: rate limited")
	ErrRemote      = errors.New("service: remote error")
	ErrBadRequest  = errors.New("service: bad request")
	ErrIDMismatch  = errors.New("service: response id does not match request")
)

var codes = []struct {
	code string
	err  error
}{
	{protocol.CodeInvalidKey, laminate.ErrInvalidKey},
	{protocol.CodeSerialization, laminate.ErrSerialization},
	{protocol.CodeSignatureMismatch, laminate.ErrSignatureMismatch},
	{protocol.CodeTampered, laminate.ErrTamperedData},
	{protocol.CodeMalformedPayload, laminate.ErrMalformedPayload},
	{protocol.CodeNotImplemented, laminate.ErrNotImplemented},
	{protocol.CodeRateLimited, ErrRateLimited},
	{protocol.CodeBadRequest, ErrBadRequest},
}

// codeFor maps an error to its wire code.
func codeFor(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return protocol.CodeInternal
}

// errorFor turns an ErrorMessage back into an error matching the sentinel the
// server saw.
func errorFor(m protocol.ErrorMessage) error {
	for _, c := range codes {
		if c.code == m.Code {
			return fmt.Errorf("%w: %s", c.err, m.Message)
		}
	}
	return fmt.Errorf("%w: %s: %s", ErrRemote, m.Code, m.Message)
}
