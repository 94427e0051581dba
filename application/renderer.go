package application

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"
	"time"

	xdraw "golang.org/x/image/draw"
)

// Layout of the reference 1080x1920 portrait display.
const (
	referenceWidth  = 1080
	referenceHeight = 1920

	fontSize      = 100
	fontSizeSmall = 70
	fontSizeLabel = 50
	fontSizeTiny  = 40

	amsYPos     = 2
	stateYPos   = 150
	tempYPos    = 275
	jobNameYPos = 450
	coverYPos   = 600
	layerYPos   = 1100
	timeYPos    = 1300

	heatLimit = 45

	loginPrompt = "Scan to log in to Bambu Cloud"
)

var (
	colorBackground = color.RGBA{0, 0, 0, 255}
	colorText       = color.RGBA{255, 255, 255, 255}
	colorHeating    = color.RGBA{255, 0, 0, 255}
	colorCooling    = color.RGBA{0, 196, 255, 255}
	colorActiveTray = color.RGBA{0, 255, 0, 255}
	colorEmptyTray  = color.RGBA{128, 128, 128, 255}
)

// Frame is everything drawn on one refresh.
type Frame struct {
	Status *JobStatus
	Cover  image.Image
	QRCode image.Image

	// CoverWidth is the width the cover is drawn at on the reference layout.
	CoverWidth int
	Now        time.Time
}

// Render draws frame into region of canvas. Pixels outside region are left
// untouched.
func Render(canvas draw.Image, region image.Rectangle, frame Frame) {
	region = region.Intersect(canvas.Bounds())
	if region.Empty() {
		return
	}

	buf := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(buf, buf.Bounds(), image.NewUniform(colorBackground), image.Point{}, draw.Src)

	p := newPainter(buf, layoutScale(region))
	defer p.close()

	renderFrame(p, frame)

	draw.Draw(canvas, region, buf, image.Point{}, draw.Src)
}

func layoutScale(region image.Rectangle) float64 {
	scale := 1.0
	if sx := float64(region.Dx()) / referenceWidth; sx < scale {
		scale = sx
	}
	if sy := float64(region.Dy()) / referenceHeight; sy < scale {
		scale = sy
	}
	return scale
}

func renderFrame(p *painter, frame Frame) {
	w := p.width()
	status := frame.Status

	if status == nil {
		p.text("Connecting to printer", w/2, p.px(stateYPos), fontSizeSmall, colorText, AlignCenter, 0)
		if frame.QRCode != nil {
			renderLogin(p, frame.QRCode)
		}
		return
	}

	renderAMS(p, status.AMS)

	if label := status.StageLabel(); label != "" {
		p.text(label, w/2, p.px(stateYPos), fontSizeSmall, colorText, AlignCenter, 0)
	}

	renderTemperature(p, "Nozzle", status.Nozzle, p.px(100), p.px(250))
	renderTemperature(p, "Bed", status.Bed, w-p.px(430), w-p.px(270))

	if frame.QRCode != nil {
		renderLogin(p, frame.QRCode)
		return
	}

	if !status.Active() {
		return
	}

	p.text(strings.ReplaceAll(status.JobName, "_", " "), w/2, p.px(jobNameYPos), fontSizeSmall, colorText, AlignCenter, w-p.px(200))

	if frame.Cover != nil {
		renderCover(p, frame.Cover, frame.CoverWidth)
	}

	p.text(fmt.Sprintf("Layer %d of %d (%d%%)", status.Layer, status.TotalLayers, status.Progress),
		w/2, p.px(layerYPos), fontSizeSmall, colorText, AlignCenter, 0)

	right := w - p.px(50)
	p.text("Remaining", right, p.px(timeYPos-fontSizeSmall), fontSizeLabel, colorText, AlignRight, 0)
	if status.RemainingMinutes > 0 {
		remaining := time.Duration(status.RemainingMinutes) * time.Minute
		p.text(FormatDuration(remaining, true), right, p.px(timeYPos), fontSizeSmall, colorText, AlignRight, 0)
	} else {
		p.text("Any second now", right, p.px(timeYPos), fontSizeSmall, colorText, AlignRight, 0)
	}

	if !status.StartedAt.IsZero() {
		mid := w/2 - p.px(100)
		p.text("Elapsed", mid, p.px(timeYPos-fontSizeSmall), fontSizeLabel, colorText, AlignRight, 0)
		p.text(FormatDuration(frame.Now.Sub(status.StartedAt), false), mid, p.px(timeYPos), fontSizeSmall, colorText, AlignRight, 0)
	}
}

func renderLogin(p *painter, qr image.Image) {
	w := p.width()
	qr = scaleImage(qr, p.px(qr.Bounds().Dx()))
	size := qr.Bounds().Dx()
	p.image(qr, (w-size)/2, p.px(coverYPos))
	p.text(loginPrompt, w/2, p.px(coverYPos)+size+p.px(50), fontSizeSmall, colorText, AlignCenter, w)
}

func renderCover(p *painter, cover image.Image, width int) {
	if width <= 0 {
		width = DefaultCoverWidth
	}
	cover = scaleImage(cover, p.px(width))
	p.image(cover, (p.width()-cover.Bounds().Dx())/2, p.px(coverYPos))
}

// TemperatureColor is red while heating toward the target, blue while
// cooling down from above the heat limit and white otherwise.
func TemperatureColor(t Temperature) color.RGBA {
	current, target := int(t.Current), int(t.Target)
	switch {
	case target > current:
		return colorHeating
	case target < current && current > heatLimit:
		return colorCooling
	default:
		return colorText
	}
}

func renderTemperature(p *painter, label string, t Temperature, labelX, valueX int) {
	y := p.px(tempYPos)
	p.text(label, labelX, y+p.px(30), fontSizeTiny, colorText, AlignLeft, 0)
	p.text(strconv.Itoa(int(t.Current))+"°", valueX, y+p.px(10), fontSize, TemperatureColor(t), AlignLeft, 0)
}

func renderAMS(p *painter, ams AMS) {
	if len(ams.Units) == 0 || len(ams.Units[0].Trays) == 0 {
		return
	}
	unit := ams.Units[0]
	w := p.width()

	if unit.HumidityIndex > 0 {
		// printers report 5 as dry; the apps show 1 as dry
		p.text(fmt.Sprintf("Humidity %d/5", 6-unit.HumidityIndex), w-p.px(20), p.px(amsYPos+10), fontSizeTiny, colorText, AlignRight, 0)
	}

	slotWidth, colorWidth, colorHeight, spacing := p.px(240), p.px(75), p.px(30), p.px(10)
	amsWidth := len(unit.Trays)*(slotWidth+spacing) - spacing
	xStart := (w - amsWidth) / 2
	y := p.px(amsYPos)

	for i, tray := range unit.Trays {
		x := xStart + (slotWidth-colorWidth)/2
		swatch := image.Rect(x, y, x+colorWidth, y+colorHeight)
		if tray.Empty {
			p.text("Empty", xStart+slotWidth/2, p.px(60), fontSizeTiny, colorText, AlignCenter, slotWidth)
			p.strokeRect(swatch, colorEmptyTray)
		} else {
			p.text(tray.Name, xStart+slotWidth/2, p.px(60), fontSizeTiny, colorText, AlignCenter, slotWidth)
			p.fillRect(swatch, ParseTrayColor(tray.Color))
			if i == ams.TrayNow {
				p.strokeRect(swatch.Inset(-2), colorActiveTray)
			}
		}
		xStart += slotWidth + spacing
	}
}

// ParseTrayColor parses an RRGGBBAA filament colour. Malformed values are
// black.
func ParseTrayColor(s string) color.RGBA {
	if len(s) != 8 {
		return color.RGBA{A: 255}
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{A: 255}
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: 255}
}

func scaleImage(img image.Image, width int) image.Image {
	b := img.Bounds()
	if width <= 0 || b.Dx() == 0 || b.Dx() == width {
		return img
	}
	height := b.Dy() * width / b.Dx()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

