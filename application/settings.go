package application

const (
	DefaultOnboardingPort = 30000
	DefaultMQTTPort       = 8883
	DefaultCoverWidth     = 512
	DefaultQRCodeWidth    = 250
)

// Rect is the display rectangle requested in the module configuration.
// Width and Height of -1 extend to the edge of the display. The host
// resolves it against the canvas.
type Rect struct {
	Top    int
	Left   int
	Width  int
	Height int
}

// Settings is the validated module configuration. It is loaded once per run.
type Settings struct {
	DeviceType  string
	Serial      string
	Host        string
	AccessCode  string
	TokenFile   string
	Region      string
	Email       string
	Username    string
	Password    string
	Display     Rect
	MQTTPort    int
	CoverWidth  int
	QRCodeWidth int
	Onboarding  OnboardingSettings
}

type OnboardingSettings struct {
	Host string
	Port int
}

func (s Settings) Credentials() Credentials {
	return Credentials{Email: s.Email, Username: s.Username, Password: s.Password}
}
