package adapters

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bambu-display/application"

	"github.com/rs/zerolog"
)

// CloudAPI is the part of the vendor cloud used by BambuVendor.
type CloudAPI interface {
	Login(ctx context.Context, account, password string) (application.AuthToken, error)
	RequestCode(ctx context.Context, email string) error
	LoginWithCode(ctx context.Context, email, code string) (application.AuthToken, error)
	Devices(ctx context.Context, token application.AuthToken) ([]application.Device, error)
	LatestCoverURL(ctx context.Context, token application.AuthToken, serial string) (string, error)
	Download(ctx context.Context, fileURL string) ([]byte, error)
}

// PrinterLink is the local connection to the printer. Connect must not block.
type PrinterLink interface {
	Connect() error
	IsConnected() bool
	Report() (application.JobStatus, string, bool)
	Close() error
}

var (
	_ CloudAPI    = &BambuCloudClient{}
	_ PrinterLink = &PrinterMQTTClient{}
)

type BambuVendorParams struct {
	Serial  string
	Cloud   CloudAPI
	Printer PrinterLink

	Log zerolog.Logger
}

// BambuVendor combines the local printer link for live status with the
// cloud for accounts and cover images.
type BambuVendor struct {
	params BambuVendorParams

	mu             sync.Mutex
	validatedToken string
	coverJobKey    string
	coverURL       string

	log zerolog.Logger
}

func NewBambuVendor(params BambuVendorParams) (*BambuVendor, error) {
	if params.Serial == "" {
		return nil, fmt.Errorf("Serial is empty")
	}
	if params.Cloud == nil {
		return nil, fmt.Errorf("Cloud is nil")
	}
	if params.Printer == nil {
		return nil, fmt.Errorf("Printer is nil")
	}
	return &BambuVendor{params: params, log: params.Log}, nil
}

func (v *BambuVendor) Authenticate(ctx context.Context, creds application.Credentials) (application.AuthToken, error) {
	account := creds.Username
	if account == "" {
		account = creds.Email
	}
	if account == "" || creds.Password == "" {
		return application.AuthToken{}, application.ErrVerificationRequired
	}
	return v.params.Cloud.Login(ctx, account, creds.Password)
}

func (v *BambuVendor) RequestVerificationCode(ctx context.Context, email string) error {
	return v.params.Cloud.RequestCode(ctx, email)
}

func (v *BambuVendor) VerifyCode(ctx context.Context, email, code string) (application.AuthToken, error) {
	return v.params.Cloud.LoginWithCode(ctx, email, code)
}

// JobStatus reads the merged printer report. The cover of a job is looked
// up in the cloud once per job.
func (v *BambuVendor) JobStatus(ctx context.Context, token application.AuthToken) (application.JobStatus, error) {
	if err := v.validateToken(ctx, token); err != nil {
		return application.JobStatus{}, err
	}

	// the link comes up in the background, this tick is skipped meanwhile
	if !v.params.Printer.IsConnected() {
		if err := v.params.Printer.Connect(); err != nil {
			return application.JobStatus{}, fmt.Errorf("%w: %v", application.ErrPrinterNotConnected, err)
		}
		return application.JobStatus{}, application.ErrPrinterNotConnected
	}

	status, jobKey, ok := v.params.Printer.Report()
	if !ok {
		return application.JobStatus{}, application.ErrPrinterNotConnected
	}
	if !status.Active() || jobKey == "" {
		return status, nil
	}

	coverURL, err := v.coverFor(ctx, token, jobKey)
	if errors.Is(err, application.ErrUnauthorized) {
		return application.JobStatus{}, err
	}
	if err != nil {
		v.log.Warn().Err(err).Msg("looking up job cover failed")
	}
	status.CoverRef = coverURL
	return status, nil
}

func (v *BambuVendor) FetchCoverImage(ctx context.Context, ref string) ([]byte, error) {
	return v.params.Cloud.Download(ctx, ref)
}

func (v *BambuVendor) Close() error {
	return v.params.Printer.Close()
}

// validateToken checks a token against the device list the first time it
// is used. Only a rejection is fatal.
func (v *BambuVendor) validateToken(ctx context.Context, token application.AuthToken) error {
	v.mu.Lock()
	validated := v.validatedToken == token.Token
	v.mu.Unlock()
	if validated {
		return nil
	}

	devices, err := v.params.Cloud.Devices(ctx, token)
	if errors.Is(err, application.ErrUnauthorized) {
		return err
	}
	if err != nil {
		v.log.Debug().Err(err).Msg("device list unavailable, token not validated yet")
		return nil
	}

	found := false
	for _, d := range devices {
		if d.Serial == v.params.Serial {
			found = true
			v.log.Info().Str("name", d.Name).Str("model", d.Model).Bool("online", d.Online).
				Str("print_status", d.PrintStatus).Msg("printer bound to account")
		}
	}
	if !found {
		v.log.Warn().Str("serial", v.params.Serial).Msg("printer is not bound to this account, covers will be missing")
	}

	v.mu.Lock()
	v.validatedToken = token.Token
	v.mu.Unlock()
	return nil
}

func (v *BambuVendor) coverFor(ctx context.Context, token application.AuthToken, jobKey string) (string, error) {
	v.mu.Lock()
	if v.coverJobKey == jobKey {
		url := v.coverURL
		v.mu.Unlock()
		return url, nil
	}
	v.mu.Unlock()

	url, err := v.params.Cloud.LatestCoverURL(ctx, token, v.params.Serial)
	if err != nil {
		return "", err
	}

	v.mu.Lock()
	v.coverJobKey = jobKey
	v.coverURL = url
	v.mu.Unlock()
	v.log.Info().Str("job", jobKey).Msg("job cover located")
	return url, nil
}

var _ application.Vendor = &BambuVendor{}
