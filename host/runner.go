package host

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
)

const (
	DefaultWidth    = 1080
	DefaultHeight   = 1920
	DefaultInterval = time.Second
)

// Instance is a module placed on the canvas.
type Instance struct {
	Name   string
	Module Module
	Region image.Rectangle
}

type RunnerParams struct {
	Instances []Instance

	Width    int
	Height   int
	Interval time.Duration

	// Output is the PNG file every frame is written to.
	Output string

	Log zerolog.Logger
}

func (p *RunnerParams) EnsureDefaults() {
	if p.Width == 0 {
		p.Width = DefaultWidth
	}
	if p.Height == 0 {
		p.Height = DefaultHeight
	}
	if p.Interval == 0 {
		p.Interval = DefaultInterval
	}
}

// Runner refreshes all modules on one canvas at a fixed interval.
type Runner struct {
	params RunnerParams

	canvas *image.RGBA

	log zerolog.Logger
}

func NewRunner(params RunnerParams) (*Runner, error) {
	params.EnsureDefaults()

	if params.Output == "" {
		return nil, fmt.Errorf("Output is empty")
	}
	if params.Width < 0 || params.Height < 0 || params.Interval < 0 {
		return nil, fmt.Errorf("invalid canvas %dx%d or interval %s", params.Width, params.Height, params.Interval)
	}

	return &Runner{
		params: params,
		canvas: image.NewRGBA(image.Rect(0, 0, params.Width, params.Height)),
		log:    params.Log,
	}, nil
}

func (r *Runner) Bounds() image.Rectangle {
	return r.canvas.Bounds()
}

// Run draws a frame immediately and then on every tick until ctx is done.
// Modules are closed on return.
func (r *Runner) Run(ctx context.Context) error {
	defer r.close()

	ticker := time.NewTicker(r.params.Interval)
	defer ticker.Stop()

	for {
		if err := r.Tick(ctx); err != nil {
			r.log.Error().Err(err).Msg("writing frame failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick refreshes every module once and writes the frame.
func (r *Runner) Tick(ctx context.Context) error {
	draw.Draw(r.canvas, r.canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	for _, inst := range r.params.Instances {
		r.refresh(ctx, inst)
	}

	return r.writeFrame()
}

func (r *Runner) refresh(ctx context.Context, inst Instance) {
	var pc panics.Catcher
	var err error
	pc.Try(func() {
		err = inst.Module.Refresh(ctx, r.canvas, inst.Region)
	})

	if recovered := pc.Recovered(); recovered != nil {
		r.log.Error().Err(recovered.AsError()).Str("instance", inst.Name).Msg("module panicked")
		return
	}
	if err != nil {
		r.log.Warn().Err(err).Str("instance", inst.Name).Msg("refresh failed, retrying next tick")
	}
}

func (r *Runner) writeFrame() error {
	dir := filepath.Dir(r.params.Output)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.params.Output)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, r.canvas); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), r.params.Output)
}

func (r *Runner) close() {
	var errs []error
	for _, inst := range r.params.Instances {
		if err := inst.Module.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", inst.Name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		r.log.Warn().Err(err).Msg("closing modules failed")
	}
}
