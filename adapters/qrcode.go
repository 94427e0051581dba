package adapters

import (
	"fmt"
	"image"

	"bambu-display/application"

	qrcode "github.com/skip2/go-qrcode"
)

// QRCodeEncoder renders QR codes with medium error correction.
type QRCodeEncoder struct {
	Level qrcode.RecoveryLevel
}

func NewQRCodeEncoder() *QRCodeEncoder {
	return &QRCodeEncoder{Level: qrcode.Medium}
}

func (e *QRCodeEncoder) Encode(content string, size int) (image.Image, error) {
	qr, err := qrcode.New(content, e.Level)
	if err != nil {
		return nil, fmt.Errorf("qr code: %w", err)
	}
	return qr.Image(size), nil
}

var _ application.QREncoder = &QRCodeEncoder{}
