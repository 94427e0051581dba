package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/rs/zerolog"
)

type Display interface {
	Refresh(ctx context.Context, canvas draw.Image, region image.Rectangle) error
	Close() error
}

type DisplayParams struct {
	Settings   Settings
	Vendor     Vendor
	TokenStore TokenStore
	Onboarding *OnboardingFlow

	Now func() time.Time

	Log zerolog.Logger
}

type display struct {
	params DisplayParams

	poller      *StatusPoller
	initialized bool

	coverRef string
	cover    image.Image

	log zerolog.Logger
}

func NewDisplay(params DisplayParams) (Display, error) {
	if params.Vendor == nil {
		return nil, fmt.Errorf("Vendor is nil")
	}
	if params.TokenStore == nil {
		return nil, fmt.Errorf("TokenStore is nil")
	}
	if params.Onboarding == nil {
		return nil, fmt.Errorf("Onboarding is nil")
	}
	if params.Now == nil {
		params.Now = time.Now
	}

	poller, err := NewStatusPoller(StatusPollerParams{
		Vendor: params.Vendor,
		Log:    params.Log.With().Str("module", "poller").Logger(),
	})
	if err != nil {
		return nil, err
	}

	return &display{params: params, poller: poller, log: params.Log}, nil
}

// Refresh is called by the host on every tick. Failures are logged and
// retried on the next tick; the frame is drawn regardless.
func (d *display) Refresh(ctx context.Context, canvas draw.Image, region image.Rectangle) error {
	start := d.params.Now()
	defer func() {
		refreshSeconds.Observe(d.params.Now().Sub(start).Seconds())
	}()

	if !d.initialized {
		d.init(ctx)
		d.initialized = true
	}

	var err error
	if !d.poller.HasToken() {
		err = d.awaitToken(ctx)
	}
	if d.poller.HasToken() && d.poller.Poll(ctx) == PollNeedsOnboarding {
		err = d.awaitToken(ctx)
	}

	d.updateCover()

	Render(canvas, region, Frame{
		Status:     d.poller.Status(),
		Cover:      d.cover,
		QRCode:     d.params.Onboarding.QRCode(),
		CoverWidth: d.params.Settings.CoverWidth,
		Now:        d.params.Now(),
	})
	return err
}

func (d *display) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return errors.Join(
		d.params.Onboarding.Stop(ctx),
		d.params.Vendor.Close(),
	)
}

// init reads the cached token and falls back to a password login.
func (d *display) init(ctx context.Context) {
	token, err := d.params.TokenStore.Load()
	switch {
	case err == nil && !token.IsZero():
		d.log.Info().Msg("using cached auth token")
		d.poller.SetToken(token)
		return
	case errors.Is(err, ErrTokenNotFound):
		d.log.Info().Msg("no cached auth token")
	case err != nil:
		d.log.Warn().Err(err).Msg("reading cached auth token failed")
	}

	token, err = d.params.Vendor.Authenticate(ctx, d.params.Settings.Credentials())
	if err != nil {
		d.log.Info().Err(err).Msg("password login not possible, onboarding required")
		return
	}
	if err := d.params.TokenStore.Save(token); err != nil {
		d.log.Warn().Err(err).Msg("persisting auth token failed")
	}
	d.poller.SetToken(token)
}

// awaitToken takes over a token from a finished onboarding session or makes
// sure one is running.
func (d *display) awaitToken(ctx context.Context) error {
	if token, ok := d.params.Onboarding.TakeToken(); ok {
		d.poller.SetToken(token)
		return d.params.Onboarding.Stop(ctx)
	}
	return d.params.Onboarding.Start(ctx)
}

func (d *display) updateCover() {
	ref, data := d.poller.Cover()
	if ref == d.coverRef {
		return
	}
	d.coverRef = ref
	if ref == "" {
		d.cover = nil
		return
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		d.log.Warn().Err(err).Msg("cover image could not be decoded")
		return
	}
	width := d.params.Settings.CoverWidth
	if width <= 0 {
		width = DefaultCoverWidth
	}
	d.cover = scaleImage(img, width)
	d.log.Debug().Str("format", format).Msg("cover loaded")
}
