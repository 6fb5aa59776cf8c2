package httpapi

import (
	"errors"
	"time"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errBadScheme    = errors.New("invalid authorization scheme")
)

// nowUnix is a seam for Retry-After math in tests.
var nowUnix = func() int64 { return time.Now().Unix() }
