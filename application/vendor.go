package application

import (
	"context"
	"errors"
)

var (
	// ErrUnauthorized is returned by a Vendor when the cloud rejects the token.
	ErrUnauthorized = errors.New("not authorized with vendor cloud")
	// ErrVerificationRequired is returned by Authenticate when the account
	// needs an emailed verification code to log in.
	ErrVerificationRequired = errors.New("verification code required")
	// ErrPrinterNotConnected is returned by JobStatus while the local printer
	// link has not delivered a report yet.
	ErrPrinterNotConnected = errors.New("printer not connected")
)

type Credentials struct {
	Email    string
	Username string
	Password string
}

type Device struct {
	Serial      string
	Name        string
	Model       string
	Online      bool
	PrintStatus string
}

// Vendor is everything the display needs from the printer vendor: cloud
// authentication, live job status and cover images.
type Vendor interface {
	Authenticate(ctx context.Context, creds Credentials) (AuthToken, error)
	RequestVerificationCode(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) (AuthToken, error)

	JobStatus(ctx context.Context, token AuthToken) (JobStatus, error)
	FetchCoverImage(ctx context.Context, ref string) ([]byte, error)

	Close() error
}
