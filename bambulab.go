package main

import (
	"context"
	"fmt"

	"bambu-display/adapters"
	"bambu-display/application"
	"bambu-display/host"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const bambuLabSource = "bambulab"

func init() {
	host.Register(bambuLabSource, newBambuLabModule)
}

type bambuLabModule struct {
	application.Display
}

func (m *bambuLabModule) Collectors() []prometheus.Collector {
	return application.MetricsCollectors()
}

var _ host.Collector = &bambuLabModule{}

func newBambuLabModule(ctx context.Context, name string, section host.Section, log zerolog.Logger) (host.Module, error) {
	settings, err := adapters.LoadSettings(section)
	if err != nil {
		return nil, err
	}
	log = log.With().Str("instance", name).Str("serial", settings.Serial).Logger()
	d := settings.Display
	log.Info().Int("top", d.Top).Int("left", d.Left).Int("width", d.Width).Int("height", d.Height).
		Str("device_type", settings.DeviceType).Msg("configuring printer display")

	cloud := adapters.NewBambuCloudClient(adapters.BambuCloudClientParams{
		BaseURL: adapters.CloudBaseURL(settings.Region),
	})

	printer := adapters.NewPrinterMQTTClient(adapters.PrinterMQTTClientParams{
		Host:       settings.Host,
		Port:       settings.MQTTPort,
		Serial:     settings.Serial,
		AccessCode: settings.AccessCode,
		Log:        log.With().Str("module", "printer-mqtt").Logger(),
	})

	vendor, err := adapters.NewBambuVendor(adapters.BambuVendorParams{
		Serial:  settings.Serial,
		Cloud:   cloud,
		Printer: printer,
		Log:     log.With().Str("module", "vendor").Logger(),
	})
	if err != nil {
		return nil, err
	}

	tokenStore := adapters.NewFileTokenStore(settings.TokenFile)

	onboarding, err := application.NewOnboardingFlow(application.OnboardingFlowParams{
		Vendor:     vendor,
		TokenStore: tokenStore,
		Server: adapters.NewOnboardingHTTPServer(adapters.OnboardingHTTPServerParams{
			Host: settings.Onboarding.Host,
			Port: settings.Onboarding.Port,
			Log:  log.With().Str("module", "onboarding-server").Logger(),
		}),
		QREncoder:   adapters.NewQRCodeEncoder(),
		QRCodeWidth: settings.QRCodeWidth,
		Log:         log.With().Str("module", "onboarding").Logger(),
	})
	if err != nil {
		return nil, err
	}

	display, err := application.NewDisplay(application.DisplayParams{
		Settings:   settings,
		Vendor:     vendor,
		TokenStore: tokenStore,
		Onboarding: onboarding,
		Log:        log.With().Str("module", "display").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	log.Info().Str("device_type", settings.DeviceType).Str("host", settings.Host).Msg("bambulab module configured")
	return &bambuLabModule{Display: display}, nil
}
