package provider

import "errors"

// ErrNotFound is returned (possibly wrapped) by any Client method when the
// provider reports the targeted entity does not exist. The engine treats
// this as benign on delete (spec.md §7 "ResourceNotFound on delete as
// benign (idempotent)").
var ErrNotFound = errors.New("provider: resource not found")

// ErrCancelled is the sentinel for a call cut short by cancellation; the
// awsorg retry loop treats it as permanent. No Client in this repository
// returns it: a cancelled context surfaces as the context's own error.
var ErrCancelled = errors.New("provider: cancelled")

// ErrNotImplemented is returned by InviteAccount: the source asserts the
// relationship between a declared accountId and the invite action but
// never exercises it end-to-end, so cumulogenesis leaves it unimplemented
// behind a clear error (spec.md §9 Open Questions) rather than silently
// doing nothing.
var ErrNotImplemented = errors.New("provider: not implemented")
