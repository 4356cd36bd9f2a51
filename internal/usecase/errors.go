package usecase

import "errors"

var (
	// ErrPrincipalNotFound indicates the login principal is unknown to the directory.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrFamilyNotFound indicates the referenced token family does not exist.
	ErrFamilyNotFound = errors.New("token family not found")
	// ErrInvalidRefreshToken indicates the presented refresh secret does not
	// match any record of the family.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrExpiredRefreshToken indicates the presented refresh token is past its expiry.
	ErrExpiredRefreshToken = errors.New("refresh token expired")
	// ErrSessionEnded indicates the token family has been revoked. Replayed
	// refresh tokens surface this error after burning the family.
	ErrSessionEnded = errors.New("session ended")
	// ErrInvalidAccessToken indicates the access token failed signature or claim checks.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken indicates the access token is past its expiry.
	ErrExpiredAccessToken = errors.New("access token expired")
)
