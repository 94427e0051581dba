package application

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

var (
	regularFont     *opentype.Font
	regularFontErr  error
	regularFontOnce sync.Once
)

func loadRegularFont() (*opentype.Font, error) {
	regularFontOnce.Do(func() {
		regularFont, regularFontErr = opentype.Parse(goregular.TTF)
	})
	return regularFont, regularFontErr
}

// painter draws into one region-sized image. Faces are per painter since
// opentype faces must not be shared between goroutines.
type painter struct {
	dst   draw.Image
	scale float64
	faces map[int]font.Face
}

func newPainter(dst draw.Image, scale float64) *painter {
	return &painter{dst: dst, scale: scale, faces: make(map[int]font.Face)}
}

func (p *painter) close() {
	for _, f := range p.faces {
		_ = f.Close()
	}
}

func (p *painter) px(v int) int {
	return int(float64(v) * p.scale)
}

func (p *painter) width() int {
	return p.dst.Bounds().Dx()
}

func (p *painter) face(size int) font.Face {
	size = p.px(size)
	if size < 6 {
		size = 6
	}
	if f, ok := p.faces[size]; ok {
		return f
	}
	var face font.Face
	f, err := loadRegularFont()
	if err == nil {
		face, err = opentype.NewFace(f, &opentype.FaceOptions{Size: float64(size), DPI: 72, Hinting: font.HintingFull})
	}
	if err != nil {
		return nil
	}
	p.faces[size] = face
	return face
}

// text draws s with its top edge at y. x is the left edge, centre or right
// edge depending on align. A non-zero maxWidth truncates the text.
func (p *painter) text(s string, x, y, size int, c color.Color, align Align, maxWidth int) {
	face := p.face(size)
	if face == nil || s == "" {
		return
	}
	d := &font.Drawer{Dst: p.dst, Src: image.NewUniform(c), Face: face}
	if maxWidth > 0 {
		s = truncate(d, s, fixed.I(maxWidth))
	}
	w := d.MeasureString(s).Ceil()
	switch align {
	case AlignCenter:
		x -= w / 2
	case AlignRight:
		x -= w
	}
	d.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y) + face.Metrics().Ascent}
	d.DrawString(s)
}

func truncate(d *font.Drawer, s string, limit fixed.Int26_6) string {
	if d.MeasureString(s) <= limit {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "…"
		if d.MeasureString(candidate) <= limit {
			return candidate
		}
	}
	return ""
}

func (p *painter) fillRect(r image.Rectangle, c color.Color) {
	draw.Draw(p.dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func (p *painter) strokeRect(r image.Rectangle, c color.Color) {
	p.fillRect(image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), c)
	p.fillRect(image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), c)
	p.fillRect(image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), c)
	p.fillRect(image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), c)
}

func (p *painter) image(img image.Image, x, y int) {
	b := img.Bounds()
	draw.Draw(p.dst, image.Rect(x, y, x+b.Dx(), y+b.Dy()), img, b.Min, draw.Over)
}
