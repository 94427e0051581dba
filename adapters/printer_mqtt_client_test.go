package adapters

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSerial = "01S00C123456789"

func newTestPrinterClient(mClient *MockMQTTClient) *PrinterMQTTClient {
	return NewPrinterMQTTClient(PrinterMQTTClientParams{
		Host:       "192.168.1.50",
		Serial:     testSerial,
		AccessCode: "12345678",
		ClientID:   "test",
		// for testing
		NewClientFunc: func(options *mqtt.ClientOptions) mqtt.Client {
			return mClient
		},
	})
}

func TestPrinterMQTTClient_Options(t *testing.T) {
	var opts *mqtt.ClientOptions
	NewPrinterMQTTClient(PrinterMQTTClientParams{
		Host:       "192.168.1.50",
		Serial:     testSerial,
		AccessCode: "12345678",
		NewClientFunc: func(options *mqtt.ClientOptions) mqtt.Client {
			opts = options
			return &MockMQTTClient{}
		},
	})

	require.NotNil(t, opts)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "ssl://192.168.1.50:8883", opts.Servers[0].String())
	assert.Equal(t, PrinterMQTTUsername, opts.Username)
	assert.Equal(t, "12345678", opts.Password)
	assert.Contains(t, opts.ClientID, "bambu-display-")
	require.NotNil(t, opts.TLSConfig)
	assert.True(t, opts.TLSConfig.InsecureSkipVerify)
	assert.True(t, opts.AutoReconnect)
	assert.True(t, opts.ConnectRetry)
	assert.Equal(t, MQTTDefaultConnectRetryInterval, opts.ConnectRetryInterval)
}

func closedChan() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

func TestPrinterMQTTClient_Connect(t *testing.T) {
	mClient := &MockMQTTClient{}
	mToken := &MockToken{}

	client := newTestPrinterClient(mClient)

	checked := make(chan struct{})
	mClient.On("Connect").Return(mToken).Once()
	mToken.On("Done").Return(closedChan()).Once()
	mToken.On("Error").Return(nil).Run(func(args mock.Arguments) {
		close(checked)
	}).Once()

	err := client.Connect()
	require.NoError(t, err)

	select {
	case <-checked:
	case <-time.After(time.Second):
		t.Fatal("connect token was not awaited")
	}

	// connected only once OnConnect ran
	assert.Equal(t, false, client.IsConnected())

	status := client.Status()
	assert.Equal(t, uint64(0), status.ReportCount)
	assert.Equal(t, time.Unix(0, 0), status.LastReportTime)
	assert.Equal(t, false, status.Connected)

	// paho retries on its own, no second attempt
	err = client.Connect()
	require.NoError(t, err)

	mClient.AssertExpectations(t)
	mToken.AssertExpectations(t)
}

func TestPrinterMQTTClient_Connect_Error(t *testing.T) {
	mClient := &MockMQTTClient{}
	mToken := &MockToken{}

	client := newTestPrinterClient(mClient)

	mClient.On("Connect").Return(mToken).Once()
	mToken.On("Done").Return(closedChan()).Once()
	mToken.On("Error").Return(fmt.Errorf("bad access code")).Once()

	err := client.Connect()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return !client.connecting.Load()
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, false, client.IsConnected())

	// the next call tries again
	mToken2 := &MockToken{}
	mClient.On("Connect").Return(mToken2).Once()
	awaited := make(chan struct{})
	mToken2.On("Done").Return(make(<-chan struct{})).Run(func(args mock.Arguments) {
		close(awaited)
	}).Once()

	require.NoError(t, client.Connect())
	select {
	case <-awaited:
	case <-time.After(time.Second):
		t.Fatal("second connect attempt not started")
	}

	mClient.AssertExpectations(t)
	mToken.AssertExpectations(t)
}

func TestPrinterMQTTClient_Connect_DoesNotBlock(t *testing.T) {
	mClient := &MockMQTTClient{}
	mToken := &MockToken{}

	client := newTestPrinterClient(mClient)

	// the printer accepts TCP and never answers
	mClient.On("Connect").Return(mToken).Once()
	mToken.On("Done").Return(make(<-chan struct{})).Once()

	start := time.Now()
	require.NoError(t, client.Connect())
	require.NoError(t, client.Connect())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, false, client.IsConnected())

	// Close stops the pending attempt
	mClient.On("Disconnect", uint(250)).Once()
	require.NoError(t, client.Close())

	mClient.AssertExpectations(t)
	mClient.AssertNotCalled(t, "IsConnectionOpen")
}

func TestPrinterMQTTClient_OnConnect_SubscribesAndRequestsFullReport(t *testing.T) {
	mClient := &MockMQTTClient{}
	mSubToken := &MockToken{}
	mPubToken := &MockToken{}

	client := newTestPrinterClient(mClient)

	mClient.On("Subscribe", "device/"+testSerial+"/report", byte(0), mock.Anything).Return(mSubToken).Once()
	mSubToken.On("WaitTimeout", MQTTDefaultPublishTimeout).Return(true).Once()
	mSubToken.On("Error").Return(nil).Once()

	mClient.On("Publish", "device/"+testSerial+"/request", byte(0), false, []byte(pushAllPayload)).Return(mPubToken).Once()
	mPubToken.On("WaitTimeout", MQTTDefaultPublishTimeout).Return(true).Once()
	mPubToken.On("Error").Return(nil).Once()

	client.OnConnect(mClient)
	assert.Equal(t, true, client.IsConnected())

	mClient.AssertExpectations(t)
	mSubToken.AssertExpectations(t)
	mPubToken.AssertExpectations(t)
}

func TestPrinterMQTTClient_OnConnect_SubscribeError(t *testing.T) {
	mClient := &MockMQTTClient{}
	mSubToken := &MockToken{}

	client := newTestPrinterClient(mClient)

	mClient.On("Subscribe", "device/"+testSerial+"/report", byte(0), mock.Anything).Return(mSubToken).Once()
	mSubToken.On("WaitTimeout", MQTTDefaultPublishTimeout).Return(true).Once()
	mSubToken.On("Error").Return(fmt.Errorf("not authorized")).Once()

	client.OnConnect(mClient)
	assert.Equal(t, true, client.IsConnected())

	// no pushall without a subscription
	mClient.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mClient.AssertExpectations(t)
	mSubToken.AssertExpectations(t)
}

func TestPrinterMQTTClient_OnConnectionLost(t *testing.T) {
	mClient := &MockMQTTClient{}
	mSubToken := &MockToken{}

	client := newTestPrinterClient(mClient)

	mClient.On("Subscribe", "device/"+testSerial+"/report", byte(0), mock.Anything).Return(mSubToken).Once()
	mSubToken.On("WaitTimeout", MQTTDefaultPublishTimeout).Return(false).Once()

	client.OnConnect(mClient)
	client.ReportHandler(mClient, &MockMessage{
		topic:   client.ReportTopic(),
		payload: []byte(`{"print":{"gcode_state":"RUNNING","mc_percent":10}}`),
	})
	_, _, ok := client.Report()
	require.True(t, ok)
	assert.Equal(t, true, client.IsConnected())

	client.OnConnectionLost(mClient, fmt.Errorf("connection lost"))
	assert.Equal(t, false, client.IsConnected())
	assert.Equal(t, false, client.Status().Connected)

	// no stale state while reconnecting
	_, _, ok = client.Report()
	assert.False(t, ok)

	mClient.AssertExpectations(t)
	mSubToken.AssertExpectations(t)
}

func TestPrinterMQTTClient_RequestFullReport_NotConnected(t *testing.T) {
	mClient := &MockMQTTClient{}

	client := newTestPrinterClient(mClient)

	err := client.RequestFullReport()
	require.Equal(t, ErrMQTTNotConnected, err)

	mClient.AssertExpectations(t)
}

func TestPrinterMQTTClient_RequestFullReport_Timeout(t *testing.T) {
	mClient := &MockMQTTClient{}

	client := newTestPrinterClient(mClient)
	atomic.StoreUint64(&client.connected, 1)

	mPubToken := &MockToken{}
	mClient.On("Publish", "device/"+testSerial+"/request", byte(0), false, []byte(pushAllPayload)).Return(mPubToken).Once()
	mPubToken.On("WaitTimeout", MQTTDefaultPublishTimeout).Return(false).Once()

	err := client.RequestFullReport()
	require.Equal(t, ErrMQTTPublishTimeout, err)

	mClient.AssertExpectations(t)
	mPubToken.AssertExpectations(t)
}

func TestPrinterMQTTClient_ReportHandler(t *testing.T) {
	mClient := &MockMQTTClient{}

	client := newTestPrinterClient(mClient)

	_, _, ok := client.Report()
	require.False(t, ok)

	client.ReportHandler(mClient, &MockMessage{
		topic: client.ReportTopic(),
		payload: []byte(`{"print":{"gcode_state":"RUNNING","mc_percent":10,"subtask_name":"benchy",
			"gcode_start_time":"1700000000","nozzle_temper":210.5,"nozzle_target_temper":220}}`),
	})
	client.ReportHandler(mClient, &MockMessage{
		topic:   client.ReportTopic(),
		payload: []byte(`{"print":{"mc_percent":11}}`),
	})
	// not a print report
	client.ReportHandler(mClient, &MockMessage{
		topic:   client.ReportTopic(),
		payload: []byte(`{"info":{"command":"get_version"}}`),
	})
	client.ReportHandler(mClient, &MockMessage{
		topic:   client.ReportTopic(),
		payload: []byte(`not json`),
	})

	status, jobKey, ok := client.Report()
	require.True(t, ok)
	assert.Equal(t, "RUNNING", status.State)
	assert.Equal(t, 11, status.Progress)
	assert.Equal(t, "benchy", status.JobName)
	assert.Equal(t, 210.5, status.Nozzle.Current)
	assert.Equal(t, "benchy@1700000000", jobKey)

	assert.Equal(t, uint64(2), client.Status().ReportCount)
	assert.True(t, client.Status().LastReportTime.After(time.Unix(0, 0)))
}

func TestPrinterMQTTClient_Close(t *testing.T) {
	mClient := &MockMQTTClient{}

	client := newTestPrinterClient(mClient)

	mClient.On("IsConnectionOpen").Return(true).Once()
	mClient.On("Disconnect", uint(250)).Once()

	require.NoError(t, client.Close())
	assert.Equal(t, false, client.IsConnected())

	mClient.AssertExpectations(t)
}
