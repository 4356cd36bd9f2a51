package repository

import "errors"

var (
	// ErrNotFound indicates the requested family or token does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrStaleToken indicates the presented token is not the family's live
	// token. This is the replay signal; the rotation engine burns the family.
	ErrStaleToken = errors.New("repository: stale token")
	// ErrExpired indicates the token or family elapsed its validity window.
	ErrExpired = errors.New("repository: expired")
	// ErrUnavailable indicates a transient storage failure. Callers retry with
	// backoff; the core never retries internally.
	ErrUnavailable = errors.New("repository: store unavailable")
)
