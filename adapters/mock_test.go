package adapters

import (
	"context"
	"time"

	"bambu-display/application"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

type MockMQTTClient struct {
	mock.Mock
}

func (m *MockMQTTClient) IsConnected() bool {
	return m.Called().Bool(0)
}

func (m *MockMQTTClient) IsConnectionOpen() bool {
	return m.Called().Bool(0)
}

func (m *MockMQTTClient) Connect() mqtt.Token {
	return m.Called().Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

func (m *MockMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return m.Called(topic, qos, retained, payload).Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return m.Called(topic, qos, callback).Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return m.Called(filters, callback).Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) Unsubscribe(topics ...string) mqtt.Token {
	return m.Called(topics).Get(0).(mqtt.Token)
}

func (m *MockMQTTClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	m.Called(topic, callback)
}

func (m *MockMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return m.Called().Get(0).(mqtt.ClientOptionsReader)
}

var _ mqtt.Client = &MockMQTTClient{}

type MockToken struct {
	mock.Mock
}

func (m *MockToken) Wait() bool {
	return m.Called().Bool(0)
}

func (m *MockToken) WaitTimeout(d time.Duration) bool {
	return m.Called(d).Bool(0)
}

func (m *MockToken) Done() <-chan struct{} {
	return m.Called().Get(0).(<-chan struct{})
}

func (m *MockToken) Error() error {
	return m.Called().Error(0)
}

var _ mqtt.Token = &MockToken{}

type MockMessage struct {
	topic   string
	payload []byte
}

func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return 0 }
func (m *MockMessage) Retained() bool    { return false }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) MessageID() uint16 { return 0 }
func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Ack()              {}

var _ mqtt.Message = &MockMessage{}

type MockCloudAPI struct {
	mock.Mock
}

func (m *MockCloudAPI) Login(ctx context.Context, account, password string) (application.AuthToken, error) {
	args := m.Called(ctx, account, password)
	return args.Get(0).(application.AuthToken), args.Error(1)
}

func (m *MockCloudAPI) RequestCode(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockCloudAPI) LoginWithCode(ctx context.Context, email, code string) (application.AuthToken, error) {
	args := m.Called(ctx, email, code)
	return args.Get(0).(application.AuthToken), args.Error(1)
}

func (m *MockCloudAPI) Devices(ctx context.Context, token application.AuthToken) ([]application.Device, error) {
	args := m.Called(ctx, token)

	var devices []application.Device
	if d := args.Get(0); d != nil {
		devices = d.([]application.Device)
	}
	return devices, args.Error(1)
}

func (m *MockCloudAPI) LatestCoverURL(ctx context.Context, token application.AuthToken, serial string) (string, error) {
	args := m.Called(ctx, token, serial)
	return args.String(0), args.Error(1)
}

func (m *MockCloudAPI) Download(ctx context.Context, fileURL string) ([]byte, error) {
	args := m.Called(ctx, fileURL)

	var data []byte
	if d := args.Get(0); d != nil {
		data = d.([]byte)
	}
	return data, args.Error(1)
}

var _ CloudAPI = &MockCloudAPI{}

type MockPrinterLink struct {
	mock.Mock
}

func (m *MockPrinterLink) Connect() error {
	return m.Called().Error(0)
}

func (m *MockPrinterLink) IsConnected() bool {
	return m.Called().Bool(0)
}

func (m *MockPrinterLink) Report() (application.JobStatus, string, bool) {
	args := m.Called()
	return args.Get(0).(application.JobStatus), args.String(1), args.Bool(2)
}

func (m *MockPrinterLink) Close() error {
	return m.Called().Error(0)
}

var _ PrinterLink = &MockPrinterLink{}

type MockOnboardingController struct {
	mock.Mock
}

func (m *MockOnboardingController) State() application.OnboardingState {
	return m.Called().Get(0).(application.OnboardingState)
}

func (m *MockOnboardingController) LastError() error {
	return m.Called().Error(0)
}

func (m *MockOnboardingController) SubmitEmail(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockOnboardingController) SubmitCode(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}

var _ application.OnboardingController = &MockOnboardingController{}
