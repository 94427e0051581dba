package application

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrOnboardingBusy     = errors.New("onboarding request already in progress")
	ErrOnboardingState    = errors.New("onboarding is not expecting this step")
	ErrEmptyEmail         = errors.New("email is required")
	ErrEmptyVerifyCode    = errors.New("verification code is required")
	ErrOnboardingNotReady = errors.New("onboarding not started")
)

type OnboardingState int

const (
	OnboardingIdle OnboardingState = iota
	OnboardingWaitingForScan
	OnboardingCodeRequested
	OnboardingAuthenticated
)

func (s OnboardingState) String() string {
	switch s {
	case OnboardingIdle:
		return "idle"
	case OnboardingWaitingForScan:
		return "waiting_for_scan"
	case OnboardingCodeRequested:
		return "code_requested"
	case OnboardingAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("OnboardingState(%d)", int(s))
	}
}

// OnboardingController is the part of the flow driven by the login page.
type OnboardingController interface {
	State() OnboardingState
	LastError() error
	SubmitEmail(ctx context.Context, email string) error
	SubmitCode(ctx context.Context, code string) error
}

// OnboardingServer serves the login page for a controller. Start returns the
// URL users should open.
type OnboardingServer interface {
	Start(controller OnboardingController) (string, error)
	Shutdown(ctx context.Context) error
}

type QREncoder interface {
	Encode(content string, size int) (image.Image, error)
}

type OnboardingFlowParams struct {
	Vendor     Vendor
	TokenStore TokenStore
	Server     OnboardingServer
	QREncoder  QREncoder

	QRCodeWidth int
	Now         func() time.Time

	Log zerolog.Logger
}

// OnboardingFlow exchanges an emailed verification code for an AuthToken.
// It is safe for concurrent use by the login page handlers and the refresh
// loop.
type OnboardingFlow struct {
	params OnboardingFlowParams

	mu      sync.Mutex
	state   OnboardingState
	serving bool
	busy    bool
	url     string
	qrCode  image.Image
	email   string
	token   AuthToken
	lastErr error

	log zerolog.Logger
}

func NewOnboardingFlow(params OnboardingFlowParams) (*OnboardingFlow, error) {
	if params.Vendor == nil {
		return nil, fmt.Errorf("Vendor is nil")
	}
	if params.TokenStore == nil {
		return nil, fmt.Errorf("TokenStore is nil")
	}
	if params.Server == nil {
		return nil, fmt.Errorf("Server is nil")
	}
	if params.QREncoder == nil {
		return nil, fmt.Errorf("QREncoder is nil")
	}
	if params.QRCodeWidth <= 0 {
		params.QRCodeWidth = DefaultQRCodeWidth
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &OnboardingFlow{params: params, log: params.Log}, nil
}

// Start brings up the login page and renders its URL as a QR code. It is a
// no-op while the flow is already running.
func (f *OnboardingFlow) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == OnboardingWaitingForScan || f.state == OnboardingCodeRequested {
		return nil
	}

	url, err := f.params.Server.Start(f)
	if err != nil {
		return fmt.Errorf("start onboarding server: %w", err)
	}
	qr, err := f.params.QREncoder.Encode(url, f.params.QRCodeWidth)
	if err != nil {
		_ = f.params.Server.Shutdown(ctx)
		return fmt.Errorf("encode qr code: %w", err)
	}

	f.serving = true
	f.url = url
	f.qrCode = qr
	f.token = AuthToken{}
	f.lastErr = nil
	f.setState(OnboardingWaitingForScan)
	f.log.Info().Str("url", url).Msg("onboarding started, scan the code to log in")
	return nil
}

// Stop shuts the login page down. The obtained token, if any, is kept.
func (f *OnboardingFlow) Stop(ctx context.Context) error {
	f.mu.Lock()
	serving := f.serving
	f.serving = false
	if f.state != OnboardingAuthenticated {
		f.setState(OnboardingIdle)
	}
	f.qrCode = nil
	f.mu.Unlock()

	if !serving {
		return nil
	}
	f.log.Info().Msg("stopping onboarding server")
	return f.params.Server.Shutdown(ctx)
}

func (f *OnboardingFlow) SubmitEmail(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return f.fail(ErrEmptyEmail)
	}
	if err := f.begin(OnboardingWaitingForScan, OnboardingCodeRequested); err != nil {
		return err
	}

	err := f.params.Vendor.RequestVerificationCode(ctx, email)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	if err != nil {
		f.log.Warn().Err(err).Msg("requesting verification code failed")
		f.lastErr = err
		f.setState(OnboardingWaitingForScan)
		return err
	}
	f.email = email
	f.lastErr = nil
	f.setState(OnboardingCodeRequested)
	f.log.Info().Msg("verification code sent")
	return nil
}

func (f *OnboardingFlow) SubmitCode(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return f.fail(ErrEmptyVerifyCode)
	}
	if err := f.begin(OnboardingCodeRequested); err != nil {
		return err
	}
	f.mu.Lock()
	email := f.email
	f.mu.Unlock()

	token, err := f.params.Vendor.VerifyCode(ctx, email, code)
	if err == nil {
		if token.IssuedAt.IsZero() {
			token.IssuedAt = f.params.Now()
		}
		if saveErr := f.params.TokenStore.Save(token); saveErr != nil {
			err = fmt.Errorf("persist token: %w", saveErr)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	if err != nil {
		f.log.Warn().Err(err).Msg("verification failed")
		f.lastErr = err
		f.email = ""
		f.setState(OnboardingWaitingForScan)
		return err
	}
	f.token = token
	f.lastErr = nil
	f.setState(OnboardingAuthenticated)
	f.log.Info().Msg("logged in to vendor cloud")
	return nil
}

func (f *OnboardingFlow) State() OnboardingState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *OnboardingFlow) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *OnboardingFlow) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

// QRCode is the code to show while waiting for the user, nil otherwise.
func (f *OnboardingFlow) QRCode() image.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == OnboardingWaitingForScan || f.state == OnboardingCodeRequested {
		return f.qrCode
	}
	return nil
}

// TakeToken hands over the token obtained by this session. It returns it
// only once.
func (f *OnboardingFlow) TakeToken() (AuthToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := f.token
	f.token = AuthToken{}
	return token, !token.IsZero()
}

func (f *OnboardingFlow) begin(allowed ...OnboardingState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == OnboardingIdle {
		return ErrOnboardingNotReady
	}
	if f.busy {
		return ErrOnboardingBusy
	}
	for _, s := range allowed {
		if f.state == s {
			f.busy = true
			return nil
		}
	}
	return ErrOnboardingState
}

func (f *OnboardingFlow) fail(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastErr = err
	return err
}

// must hold f.mu
func (f *OnboardingFlow) setState(s OnboardingState) {
	f.state = s
	onboardingState.Set(float64(s))
}
