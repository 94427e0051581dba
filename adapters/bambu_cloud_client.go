package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bambu-display/application"

	"golang.org/x/oauth2"
)

const (
	BambuCloudGlobalURL = "https://api.bambulab.com"
	BambuCloudChinaURL  = "https://api.bambulab.cn"

	bambuCloudDefaultTimeout = 15 * time.Second
	maxCoverBytes            = 20 << 20

	loginTypeVerifyCode = "verifyCode"
	loginTypeTFA        = "tfa"
)

// CloudError is a non-successful response from the vendor cloud.
type CloudError struct {
	StatusCode int
	Message    string
}

func (e *CloudError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bambu cloud: http %d", e.StatusCode)
	}
	return fmt.Sprintf("bambu cloud: http %d: %s", e.StatusCode, e.Message)
}

// Is lets rejected credentials match application.ErrUnauthorized.
func (e *CloudError) Is(target error) bool {
	return target == application.ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// CloudBaseURL picks the API host for a configured region.
func CloudBaseURL(region string) string {
	switch strings.ToLower(strings.TrimSpace(region)) {
	case "china", "cn":
		return BambuCloudChinaURL
	default:
		return BambuCloudGlobalURL
	}
}

type BambuCloudClientParams struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (p *BambuCloudClientParams) EnsureDefaults() {
	if p.BaseURL == "" {
		p.BaseURL = BambuCloudGlobalURL
	}
	p.BaseURL = strings.TrimRight(p.BaseURL, "/")

	if p.HTTPClient == nil {
		p.HTTPClient = &http.Client{Timeout: bambuCloudDefaultTimeout}
	}
}

// BambuCloudClient talks to the vendor cloud REST API.
type BambuCloudClient struct {
	params BambuCloudClientParams
}

func NewBambuCloudClient(params BambuCloudClientParams) *BambuCloudClient {
	params.EnsureDefaults()
	return &BambuCloudClient{params: params}
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	LoginType    string `json:"loginType"`
}

func (r loginResponse) token(now time.Time) (application.AuthToken, error) {
	switch r.LoginType {
	case loginTypeVerifyCode:
		return application.AuthToken{}, application.ErrVerificationRequired
	case loginTypeTFA:
		return application.AuthToken{}, fmt.Errorf("two factor authentication is not supported: %w", application.ErrVerificationRequired)
	}
	if r.AccessToken == "" {
		return application.AuthToken{}, errors.New("bambu cloud: login response carries no token")
	}

	token := application.AuthToken{
		Token:        r.AccessToken,
		RefreshToken: r.RefreshToken,
		IssuedAt:     now,
	}
	if r.ExpiresIn > 0 {
		token.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return token, nil
}

// Login signs in with account and password. Accounts that need an emailed
// code get ErrVerificationRequired.
func (c *BambuCloudClient) Login(ctx context.Context, account, password string) (application.AuthToken, error) {
	var resp loginResponse
	err := c.do(ctx, c.params.HTTPClient, http.MethodPost, "/v1/user-service/user/login", map[string]string{
		"account":  account,
		"password": password,
	}, &resp)
	if err != nil {
		return application.AuthToken{}, err
	}
	return resp.token(time.Now())
}

// RequestCode has the cloud email a login code to email.
func (c *BambuCloudClient) RequestCode(ctx context.Context, email string) error {
	return c.do(ctx, c.params.HTTPClient, http.MethodPost, "/v1/user-service/user/sendemail/code", map[string]string{
		"email": email,
		"type":  "codeLogin",
	}, nil)
}

func (c *BambuCloudClient) LoginWithCode(ctx context.Context, email, code string) (application.AuthToken, error) {
	var resp loginResponse
	err := c.do(ctx, c.params.HTTPClient, http.MethodPost, "/v1/user-service/user/login", map[string]string{
		"account": email,
		"code":    code,
	}, &resp)
	if err != nil {
		return application.AuthToken{}, err
	}
	return resp.token(time.Now())
}

type BoundDevice struct {
	Serial      string `json:"dev_id"`
	Name        string `json:"name"`
	Online      bool   `json:"online"`
	PrintStatus string `json:"print_status"`
	Model       string `json:"dev_product_name"`
}

// Devices lists the printers bound to the account.
func (c *BambuCloudClient) Devices(ctx context.Context, token application.AuthToken) ([]application.Device, error) {
	var resp struct {
		Devices []BoundDevice `json:"devices"`
	}
	if err := c.do(ctx, c.authorized(ctx, token), http.MethodGet, "/v1/iot-service/api/user/bind", nil, &resp); err != nil {
		return nil, err
	}

	devices := make([]application.Device, 0, len(resp.Devices))
	for _, d := range resp.Devices {
		devices = append(devices, application.Device{
			Serial:      d.Serial,
			Name:        d.Name,
			Model:       d.Model,
			Online:      d.Online,
			PrintStatus: d.PrintStatus,
		})
	}
	return devices, nil
}

// LatestCoverURL returns the cover of the most recent task of the printer,
// empty when there is none.
func (c *BambuCloudClient) LatestCoverURL(ctx context.Context, token application.AuthToken, serial string) (string, error) {
	var resp struct {
		Hits []struct {
			Title string `json:"title"`
			Cover string `json:"cover"`
		} `json:"hits"`
	}
	path := "/v1/user-service/my/tasks?" + url.Values{"deviceId": {serial}, "limit": {"1"}}.Encode()
	if err := c.do(ctx, c.authorized(ctx, token), http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	if len(resp.Hits) == 0 {
		return "", nil
	}
	return resp.Hits[0].Cover, nil
}

// Download fetches a pre-signed file URL handed out by the cloud.
func (c *BambuCloudClient) Download(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("bambu cloud: %w", err)
	}
	resp, err := c.params.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bambu cloud: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, &CloudError{StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes))
	if err != nil {
		return nil, fmt.Errorf("bambu cloud: read download: %w", err)
	}
	return data, nil
}

func (c *BambuCloudClient) authorized(ctx context.Context, token application.AuthToken) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.params.HTTPClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.Token,
		TokenType:   "Bearer",
	}))
	client.Timeout = c.params.HTTPClient.Timeout
	return client
}

func (c *BambuCloudClient) do(ctx context.Context, client *http.Client, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("bambu cloud: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.params.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("bambu cloud: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("bambu cloud: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bambu cloud: read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return &CloudError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("bambu cloud: decode response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
