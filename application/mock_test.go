package application

import (
	"context"
	"image"

	"github.com/stretchr/testify/mock"
)

type MockVendor struct {
	mock.Mock
}

func (m *MockVendor) Authenticate(ctx context.Context, creds Credentials) (AuthToken, error) {
	args := m.Called(ctx, creds)
	return args.Get(0).(AuthToken), args.Error(1)
}

func (m *MockVendor) RequestVerificationCode(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockVendor) VerifyCode(ctx context.Context, email, code string) (AuthToken, error) {
	args := m.Called(ctx, email, code)
	return args.Get(0).(AuthToken), args.Error(1)
}

func (m *MockVendor) JobStatus(ctx context.Context, token AuthToken) (JobStatus, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(JobStatus), args.Error(1)
}

func (m *MockVendor) FetchCoverImage(ctx context.Context, ref string) ([]byte, error) {
	args := m.Called(ctx, ref)

	var data []byte
	if d := args.Get(0); d != nil {
		data = d.([]byte)
	}
	return data, args.Error(1)
}

func (m *MockVendor) Close() error {
	return m.Called().Error(0)
}

var _ Vendor = &MockVendor{}

type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Load() (AuthToken, error) {
	args := m.Called()
	return args.Get(0).(AuthToken), args.Error(1)
}

func (m *MockTokenStore) Save(token AuthToken) error {
	return m.Called(token).Error(0)
}

var _ TokenStore = &MockTokenStore{}

type MockOnboardingServer struct {
	mock.Mock
}

func (m *MockOnboardingServer) Start(controller OnboardingController) (string, error) {
	args := m.Called(controller)
	return args.String(0), args.Error(1)
}

func (m *MockOnboardingServer) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var _ OnboardingServer = &MockOnboardingServer{}

type MockQREncoder struct {
	mock.Mock
}

func (m *MockQREncoder) Encode(content string, size int) (image.Image, error) {
	args := m.Called(content, size)

	var img image.Image
	if i := args.Get(0); i != nil {
		img = i.(image.Image)
	}
	return img, args.Error(1)
}

var _ QREncoder = &MockQREncoder{}
