package application

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
)

type PollOutcome int

const (
	// PollUpdated means a fresh status was received.
	PollUpdated PollOutcome = iota
	// PollSkipped means the tick failed transiently and the last status was kept.
	PollSkipped
	// PollNeedsOnboarding means there is no usable token.
	PollNeedsOnboarding
)

func (o PollOutcome) String() string {
	switch o {
	case PollUpdated:
		return "updated"
	case PollSkipped:
		return "skipped"
	case PollNeedsOnboarding:
		return "needs_onboarding"
	default:
		return fmt.Sprintf("PollOutcome(%d)", int(o))
	}
}

type StatusPollerParams struct {
	Vendor Vendor

	Log zerolog.Logger
}

// StatusPoller pulls the job status once per tick and keeps the cover image
// of the current job.
type StatusPoller struct {
	vendor Vendor

	token    AuthToken
	status   *JobStatus
	coverRef string
	cover    []byte

	hmsErrors  []string
	printError int

	log zerolog.Logger
}

func NewStatusPoller(params StatusPollerParams) (*StatusPoller, error) {
	if params.Vendor == nil {
		return nil, fmt.Errorf("Vendor is nil")
	}
	return &StatusPoller{vendor: params.Vendor, log: params.Log}, nil
}

func (p *StatusPoller) SetToken(token AuthToken) {
	p.token = token
}

func (p *StatusPoller) Token() AuthToken {
	return p.token
}

func (p *StatusPoller) HasToken() bool {
	return !p.token.IsZero()
}

// Status returns the last successfully polled status, or nil.
func (p *StatusPoller) Status() *JobStatus {
	return p.status
}

// Cover returns the last fetched cover image and the reference it was
// fetched from.
func (p *StatusPoller) Cover() (string, []byte) {
	return p.coverRef, p.cover
}

// Poll runs one tick.
func (p *StatusPoller) Poll(ctx context.Context) PollOutcome {
	if !p.HasToken() {
		pollTotal.WithLabelValues("no_token").Inc()
		return PollNeedsOnboarding
	}

	status, err := p.vendor.JobStatus(ctx, p.token)
	if errors.Is(err, ErrUnauthorized) {
		p.log.Warn().Err(err).Msg("cloud rejected auth token")
		pollTotal.WithLabelValues("unauthorized").Inc()
		p.token = AuthToken{}
		return PollNeedsOnboarding
	}
	if err != nil {
		p.log.Debug().Err(err).Msg("status poll failed, retrying next tick")
		pollTotal.WithLabelValues("error").Inc()
		return PollSkipped
	}

	pollTotal.WithLabelValues("ok").Inc()
	p.status = &status
	p.logPrinterErrors(status)
	p.updateCover(ctx, status.CoverRef)
	return PollUpdated
}

func (p *StatusPoller) updateCover(ctx context.Context, ref string) {
	if ref == "" {
		p.coverRef = ""
		p.cover = nil
		return
	}
	if ref == p.coverRef {
		return
	}

	data, err := p.vendor.FetchCoverImage(ctx, ref)
	if err != nil {
		// keep the last known image, try again next tick
		p.log.Warn().Err(err).Msg("cover download failed")
		coverFetchTotal.WithLabelValues("error").Inc()
		return
	}

	p.log.Info().Int("bytes", len(data)).Msg("cover downloaded")
	coverFetchTotal.WithLabelValues("ok").Inc()
	p.coverRef = ref
	p.cover = data
}

// logPrinterErrors logs health and print errors when they change.
func (p *StatusPoller) logPrinterErrors(status JobStatus) {
	if !slices.Equal(status.HMSErrors, p.hmsErrors) {
		if len(status.HMSErrors) > 0 {
			p.log.Error().Strs("hms", status.HMSErrors).Msg("printer reports health errors")
		} else {
			p.log.Info().Msg("printer health errors cleared")
		}
		p.hmsErrors = slices.Clone(status.HMSErrors)
	}

	if status.PrintError != p.printError {
		if status.PrintError != 0 {
			p.log.Error().Str("print_error", fmt.Sprintf("%08X", uint32(status.PrintError))).Msg("printer reports print error")
		} else {
			p.log.Info().Msg("print error cleared")
		}
		p.printError = status.PrintError
	}
}
