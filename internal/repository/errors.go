// Package repository contains the MySQL persistence layer.  Each table
// gets its own repository type bound to a *sql.DB; methods suffixed Tx
// operate inside a caller-provided transaction.  Sentinel errors defined
// here let handlers distinguish failure scenarios without string
// matching.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own, such as cancelling another requester's
// booking. Handlers should translate this into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a delete or update cannot proceed due to
// dependent records, such as removing a court that still has confirmed
// bookings. Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
