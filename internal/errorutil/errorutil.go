package errorutil

import "errors"

// ErrDataIntegrity is a base error type to use for failures that are due to
// unrecoverable data integrity issues.
var ErrDataIntegrity = errors.New("data integrity error")

// ErrInvalidProfile is a base error type for profiles rejected at load time:
// malformed JSON, schema mismatches or violated table invariants.
var ErrInvalidProfile = errors.New("invalid profile")
