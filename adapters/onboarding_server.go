package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"bambu-display/application"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const nonceField = "nonce"

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Bambu Cloud login</title>
<style>
body { font-family: sans-serif; max-width: 28em; margin: 2em auto; padding: 0 1em; }
input { font-size: 1.2em; width: 100%; margin: .5em 0; box-sizing: border-box; }
.error { color: #b00; }
</style>
</head>
<body>
<h1>Bambu Cloud login</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if eq .State "authenticated"}}
<p>Logged in. The display picks up the new login on its next refresh, you can close this page.</p>
{{else if eq .State "code_requested"}}
<form method="post" action="/code">
<p>A verification code was sent to your email address.</p>
<input type="hidden" name="nonce" value="{{.Nonce}}">
<input type="text" name="code" inputmode="numeric" autocomplete="one-time-code" placeholder="Verification code" required>
<input type="submit" value="Log in">
</form>
<form method="post" action="/email">
<input type="hidden" name="nonce" value="{{.Nonce}}">
<input type="email" name="email" placeholder="Email" required>
<input type="submit" value="Send a new code">
</form>
{{else}}
<form method="post" action="/email">
<input type="hidden" name="nonce" value="{{.Nonce}}">
<input type="email" name="email" placeholder="Email" required>
<input type="submit" value="Send verification code">
</form>
{{end}}
</body>
</html>
`))

type loginPageData struct {
	State string
	Error string
	Nonce string
}

type onboardingStatusResponse struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

type OnboardingHTTPServerParams struct {
	// Host is advertised in the URL. The local address used for outbound
	// traffic is advertised when empty.
	Host string
	Port int

	ReadTimeout time.Duration

	Log zerolog.Logger
}

func (p *OnboardingHTTPServerParams) EnsureDefaults() {
	if p.ReadTimeout == 0 {
		p.ReadTimeout = 30 * time.Second
	}
}

// OnboardingHTTPServer serves the login page reached through the QR code.
type OnboardingHTTPServer struct {
	params OnboardingHTTPServerParams

	mu         sync.Mutex
	server     *http.Server
	controller application.OnboardingController
	nonce      string

	log zerolog.Logger
}

func NewOnboardingHTTPServer(params OnboardingHTTPServerParams) *OnboardingHTTPServer {
	params.EnsureDefaults()
	return &OnboardingHTTPServer{params: params, log: params.Log}
}

func (s *OnboardingHTTPServer) Start(controller application.OnboardingController) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return "", errors.New("onboarding server already running")
	}

	listener, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(s.params.Port)))
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}

	s.controller = controller
	s.nonce = uuid.NewString()
	s.server = &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: s.params.ReadTimeout,
		ReadTimeout:       s.params.ReadTimeout,
	}

	go func(server *http.Server) {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("onboarding server failed")
		}
	}(s.server)

	host := s.params.Host
	if host == "" {
		host = localIP()
	}
	port := listener.Addr().(*net.TCPAddr).Port
	url := fmt.Sprintf("http://%s/", net.JoinHostPort(host, strconv.Itoa(port)))
	s.log.Info().Str("url", url).Msg("onboarding server listening")
	return url, nil
}

func (s *OnboardingHTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.controller = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (s *OnboardingHTTPServer) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/email", s.handleEmail).Methods(http.MethodPost)
	r.HandleFunc("/code", s.handleCode).Methods(http.MethodPost)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	return r
}

func (s *OnboardingHTTPServer) session() (application.OnboardingController, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller, s.nonce
}

func (s *OnboardingHTTPServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	controller, nonce := s.session()
	if controller == nil {
		http.Error(w, "onboarding closed", http.StatusServiceUnavailable)
		return
	}

	data := loginPageData{State: controller.State().String(), Nonce: nonce}
	if err := controller.LastError(); err != nil {
		data.Error = err.Error()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := loginPage.Execute(w, data); err != nil {
		s.log.Warn().Err(err).Msg("rendering login page failed")
	}
}

func (s *OnboardingHTTPServer) handleEmail(w http.ResponseWriter, r *http.Request) {
	s.handleSubmit(w, r, "email", func(c application.OnboardingController, value string) error {
		return c.SubmitEmail(r.Context(), value)
	})
}

func (s *OnboardingHTTPServer) handleCode(w http.ResponseWriter, r *http.Request) {
	s.handleSubmit(w, r, "code", func(c application.OnboardingController, value string) error {
		return c.SubmitCode(r.Context(), value)
	})
}

func (s *OnboardingHTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request, field string,
	submit func(application.OnboardingController, string) error) {
	controller, nonce := s.session()
	if controller == nil {
		http.Error(w, "onboarding closed", http.StatusServiceUnavailable)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}
	if r.PostFormValue(nonceField) != nonce {
		http.Error(w, "this page is out of date, reload it", http.StatusConflict)
		return
	}

	err := submit(controller, r.PostFormValue(field))
	switch {
	case errors.Is(err, application.ErrOnboardingBusy),
		errors.Is(err, application.ErrOnboardingState),
		errors.Is(err, application.ErrOnboardingNotReady):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		// shown on the page through LastError
		s.log.Debug().Err(err).Str("step", field).Msg("onboarding step failed")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *OnboardingHTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	controller, _ := s.session()
	if controller == nil {
		http.Error(w, "onboarding closed", http.StatusServiceUnavailable)
		return
	}

	resp := onboardingStatusResponse{State: controller.State().String()}
	if err := controller.LastError(); err != nil {
		resp.Error = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// localIP is the address of the interface used for outbound traffic. No
// packet is sent.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}

var _ application.OnboardingServer = &OnboardingHTTPServer{}
