package adapters

import (
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bambu-display/application"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	MQTTDefaultConnectTimeout       = 30 * time.Second
	MQTTDefaultConnectRetryInterval = 10 * time.Second
	MQTTDefaultPublishTimeout       = 5 * time.Second

	// PrinterMQTTUsername is fixed by the printer firmware.
	PrinterMQTTUsername = "bblp"

	pushAllPayload = `{"pushing":{"sequence_id":"0","command":"pushall"}}`
)

var (
	ErrMQTTNotConnected   = errors.New("not connected")
	ErrMQTTPublishTimeout = errors.New("publish timeout")
)

type PrinterMQTTClientParams struct {
	Host       string
	Port       int
	Serial     string
	AccessCode string
	ClientID   string

	ConnectTimeout       time.Duration
	ConnectRetryInterval time.Duration
	PublishTimeout       time.Duration

	NewClientFunc func(options *mqtt.ClientOptions) mqtt.Client

	Log zerolog.Logger
}

func (m *PrinterMQTTClientParams) EnsureDefaults() {
	if m.Port == 0 {
		m.Port = application.DefaultMQTTPort
	}

	if m.ClientID == "" {
		m.ClientID = "bambu-display-" + uuid.NewString()
	}

	if m.ConnectTimeout == 0 {
		m.ConnectTimeout = MQTTDefaultConnectTimeout
	}

	if m.ConnectRetryInterval == 0 {
		m.ConnectRetryInterval = MQTTDefaultConnectRetryInterval
	}

	if m.PublishTimeout == 0 {
		m.PublishTimeout = MQTTDefaultPublishTimeout
	}

	if m.NewClientFunc == nil {
		m.NewClientFunc = mqtt.NewClient
	}
}

// PrinterMQTTStatus describes the local printer link.
type PrinterMQTTStatus struct {
	Connected      bool
	ReportCount    uint64
	LastReportTime time.Time
}

// PrinterMQTTClient keeps a TLS MQTT session with the printer and merges
// its device reports into one PrinterReport.
type PrinterMQTTClient struct {
	params PrinterMQTTClientParams

	client mqtt.Client

	connecting     atomic.Bool
	connected      uint64
	reportCount    uint64
	lastReportTime atomic.Pointer[time.Time]

	mu     sync.RWMutex
	report *PrinterReport

	log zerolog.Logger
}

func NewPrinterMQTTClient(params PrinterMQTTClientParams) *PrinterMQTTClient {
	params.EnsureDefaults()

	m := &PrinterMQTTClient{params: params, report: NewPrinterReport(), log: params.Log}
	m.client = m.newMqttClient()

	t := time.Unix(0, 0)
	m.lastReportTime.Store(&t)

	return m
}

func (m *PrinterMQTTClient) ReportTopic() string {
	return fmt.Sprintf("device/%s/report", m.params.Serial)
}

func (m *PrinterMQTTClient) RequestTopic() string {
	return fmt.Sprintf("device/%s/request", m.params.Serial)
}

// Connect starts connecting in the background and returns at once. paho
// keeps retrying until the printer answers or Close is called; IsConnected
// turns true from OnConnect.
func (m *PrinterMQTTClient) Connect() error {
	if m.IsConnected() || !m.connecting.CompareAndSwap(false, true) {
		return nil
	}

	m.log.Info().Str("host", m.params.Host).Msg("connecting to printer")
	go m.awaitConnect(m.client.Connect())
	return nil
}

func (m *PrinterMQTTClient) awaitConnect(token mqtt.Token) {
	<-token.Done()
	if err := token.Error(); err != nil {
		m.log.Warn().Err(err).Str("host", m.params.Host).Msg("connecting to printer failed")
		m.connecting.Store(false)
	}
}

func (m *PrinterMQTTClient) IsConnected() bool {
	return atomic.LoadUint64(&m.connected) == 1
}

func (m *PrinterMQTTClient) Status() PrinterMQTTStatus {
	return PrinterMQTTStatus{
		Connected:      m.IsConnected(),
		ReportCount:    atomic.LoadUint64(&m.reportCount),
		LastReportTime: *m.lastReportTime.Load(),
	}
}

// Report returns the merged printer state and the key of the current job.
// ok is false until the first report arrived.
func (m *PrinterMQTTClient) Report() (status application.JobStatus, jobKey string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.report.Empty() {
		return application.JobStatus{}, "", false
	}
	return m.report.Status(), m.report.JobKey(), true
}

// RequestFullReport asks the printer to send its complete state.
func (m *PrinterMQTTClient) RequestFullReport() error {
	return m.publish(m.RequestTopic(), []byte(pushAllPayload))
}

func (m *PrinterMQTTClient) Close() error {
	if m.connecting.Swap(false) || m.client.IsConnectionOpen() {
		m.client.Disconnect(250)
	}
	atomic.StoreUint64(&m.connected, 0)
	return nil
}

func (m *PrinterMQTTClient) publish(topic string, payload []byte) error {
	if !m.IsConnected() {
		return ErrMQTTNotConnected
	}

	token := m.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(m.params.PublishTimeout) {
		return ErrMQTTPublishTimeout
	}
	return token.Error()
}

func (m *PrinterMQTTClient) ReportHandler(client mqtt.Client, msg mqtt.Message) {
	m.mu.Lock()
	merged, err := m.report.Merge(msg.Payload())
	m.mu.Unlock()

	if err != nil {
		m.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("malformed printer report")
		return
	}
	if !merged {
		return
	}

	t := time.Now()
	m.lastReportTime.Store(&t)
	atomic.AddUint64(&m.reportCount, 1)
}

// OnConnect runs on every (re)connect. Subscriptions do not survive a clean
// session so they are set up here.
func (m *PrinterMQTTClient) OnConnect(client mqtt.Client) {
	m.log.Info().Str("host", m.params.Host).Msg("connected to printer")
	atomic.StoreUint64(&m.connected, 1)

	token := client.Subscribe(m.ReportTopic(), 0, m.ReportHandler)
	if !token.WaitTimeout(m.params.PublishTimeout) {
		m.log.Warn().Msg("subscribe to printer reports timed out")
		return
	}
	if err := token.Error(); err != nil {
		m.log.Warn().Err(err).Msg("subscribe to printer reports failed")
		return
	}

	if err := m.RequestFullReport(); err != nil {
		m.log.Warn().Err(err).Msg("requesting full report failed")
	}
}

func (m *PrinterMQTTClient) OnConnectionLost(client mqtt.Client, err error) {
	m.log.Info().Msgf("printer connection lost: %v", err)
	atomic.StoreUint64(&m.connected, 0)

	// the next pushall after reconnecting rebuilds the full state
	m.mu.Lock()
	m.report = NewPrinterReport()
	m.mu.Unlock()
}

func (m *PrinterMQTTClient) newMqttClient() mqtt.Client {
	opts := mqtt.NewClientOptions()

	opts.AddBroker(fmt.Sprintf("ssl://%s:%d", m.params.Host, m.params.Port))
	opts.SetClientID(m.params.ClientID)
	opts.SetUsername(PrinterMQTTUsername)
	opts.SetPassword(m.params.AccessCode)
	// printers present a self-signed certificate
	opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	opts.SetConnectTimeout(m.params.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(m.params.ConnectRetryInterval)

	opts.SetDefaultPublishHandler(m.ReportHandler)
	opts.OnConnect = m.OnConnect
	opts.OnConnectionLost = m.OnConnectionLost

	return m.params.NewClientFunc(opts)
}
