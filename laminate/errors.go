package laminate

import (
	"errors"

	"github.com/TheusHen/laminate/laminate/keymaterial"
	"github.com/TheusHen/laminate/laminate/round"
	"github.com/TheusHen/laminate/laminate/schedule"
)

// Sentinels from the packages laminate composes, re-exported so callers need
// a single import for errors.Is checks.
var (
	ErrInvalidKey        = keymaterial.ErrInvalidKey
	ErrInvalidKeyType    = keymaterial.ErrInvalidKeyType
	ErrSerialization     = round.ErrSerialization
	ErrMalformedPayload  = round.ErrMalformedPayload
	ErrSignatureMismatch = round.ErrSignatureMismatch
	ErrNotImplemented    = schedule.ErrNotImplemented
)

var (
	ErrTamperedData         = errors.New("laminate: outer signature mismatch, data was tampered with")
	ErrUnsupportedAlgorithm = errors.New("laminate: unsupported algorithm")
	ErrKeyRequired          = errors.New("laminate: a key is required")
)
