package cloudapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for
	// retryable failures (network errors, 5xx, rate limiting).
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the initial delay between retry attempts.
	DefaultRetryDelay = 1 * time.Second

	// DefaultMaxRetryDelay caps exponential backoff between retries.
	DefaultMaxRetryDelay = 30 * time.Second

	// DefaultDeviceCacheDuration is how long a device's local key and
	// metadata are cached before a lookup re-fetches them.
	DefaultDeviceCacheDuration = 5 * time.Minute
)

// Client talks to Tuya's cloud OpenAPI to resolve the information the LAN
// engine needs but never fetches itself: a device's local key, its data
// point schema, and (via the separate arp helper) a MAC-to-IP mapping.
type Client struct {
	BaseURL      string
	AccessID     string
	AccessSecret string

	HTTPClient *http.Client

	MaxRetries            int
	RetryDelay            time.Duration
	MaxRetryDelay         time.Duration
	UseExponentialBackoff bool

	CacheDuration time.Duration

	mu          sync.Mutex
	tok         *token
	deviceCache map[string]cachedDevice
}

type cachedDevice struct {
	device   Device
	cachedAt time.Time
}

// NewClient constructs a Client for the given Tuya OpenAPI data-center
// endpoint (e.g. "https://openapi.tuyaus.com") and project credentials.
func NewClient(baseURL, accessID, accessSecret string) *Client {
	return &Client{
		BaseURL:               baseURL,
		AccessID:              accessID,
		AccessSecret:          accessSecret,
		HTTPClient:            &http.Client{Timeout: DefaultTimeout},
		MaxRetries:            DefaultMaxRetries,
		RetryDelay:            DefaultRetryDelay,
		MaxRetryDelay:         DefaultMaxRetryDelay,
		UseExponentialBackoff: true,
		CacheDuration:         DefaultDeviceCacheDuration,
		deviceCache:           make(map[string]cachedDevice),
	}
}

// withRetry runs attempt repeatedly, honoring backoff, until it succeeds
// or returns a non-retryable error.
func (c *Client) withRetry(attempt func() error) error {
	var lastErr error
	delay := c.RetryDelay
	for i := 0; i <= c.MaxRetries; i++ {
		if i > 0 {
			time.Sleep(delay)
			if c.UseExponentialBackoff {
				delay *= 2
				if delay > c.MaxRetryDelay {
					delay = c.MaxRetryDelay
				}
			}
		}
		err := attempt()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return err
		}
	}
	return lastErr
}

// ensureToken returns a valid access token, fetching (or refreshing) one
// if the cached token is missing or expired.
func (c *Client) ensureToken() (string, error) {
	c.mu.Lock()
	tok := c.tok
	c.mu.Unlock()

	if !tok.expired() {
		return tok.AccessToken, nil
	}

	var fresh *token
	err := c.withRetry(func() error {
		t, err := c.fetchToken()
		if err != nil {
			return err
		}
		fresh = t
		return nil
	})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.tok = fresh
	c.mu.Unlock()
	return fresh.AccessToken, nil
}

func (c *Client) fetchToken() (*token, error) {
	const path = "/v1.0/token?grant_type=1"
	var body struct {
		Result token `json:"result"`
	}
	if err := c.doSigned("GET", path, nil, "", &body); err != nil {
		return nil, err
	}
	body.Result.fetchedAt = time.Now()
	return &body.Result, nil
}

// doSigned performs a signed request against the cloud API, decoding the
// envelope and, on success, unmarshaling its result into out (if out is
// not nil). accessToken is omitted from the signature for the token
// endpoint itself.
func (c *Client) doSigned(method, path string, reqBody []byte, accessToken string, out any) error {
	nonce, err := randomNonce()
	if err != nil {
		return newNetworkError("failed to generate nonce", err)
	}
	t := timestampMillis(time.Now().UnixMilli())
	sig := sign(c.AccessSecret, c.AccessID, accessToken, t, nonce, method, path, nil, reqBody)

	req, err := http.NewRequest(method, c.BaseURL+path, nil)
	if err != nil {
		return newNetworkError("failed to create request", err)
	}
	req.Header.Set("client_id", c.AccessID)
	req.Header.Set("sign", sig)
	req.Header.Set("t", t)
	req.Header.Set("sign_method", "HMAC-SHA256")
	req.Header.Set("nonce", nonce)
	if accessToken != "" {
		req.Header.Set("access_token", accessToken)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return classifyNetworkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return newNetworkError("failed to read response body", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return newRateLimitedError("cloud API rate limit exceeded")
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return newAuthError("cloud API rejected credentials")
	}
	if resp.StatusCode != http.StatusOK {
		return newHTTPError(resp.StatusCode, fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return newParseError("failed to parse response envelope", err)
	}
	if !env.Success {
		if env.Code == 1106 || env.Code == 1004 {
			return newNotFoundError(env.Msg)
		}
		return &APIError{Type: ErrTypeHTTP, Message: env.Msg, Code: env.Code, Retryable: false}
	}

	if out == nil {
		return nil
	}
	// Callers that want the whole envelope (e.g. fetchToken) pass a
	// pointer whose json tags match the top-level shape; callers that
	// only want Result pass a pointer matching Result's shape directly.
	if err := json.Unmarshal(data, out); err != nil {
		if err2 := json.Unmarshal(env.Result, out); err2 != nil {
			return newParseError("failed to parse response result", err)
		}
	}
	return nil
}

// Device looks up a device's metadata and local key from the cloud,
// using a short-lived cache so a pairing flow that calls this a few
// times in quick succession doesn't hammer the API.
func (c *Client) Device(deviceID string) (*Device, error) {
	c.mu.Lock()
	if cached, ok := c.deviceCache[deviceID]; ok && time.Since(cached.cachedAt) < c.CacheDuration {
		d := cached.device
		c.mu.Unlock()
		return &d, nil
	}
	c.mu.Unlock()

	accessToken, err := c.ensureToken()
	if err != nil {
		return nil, err
	}

	var dev Device
	err = c.withRetry(func() error {
		var body struct {
			Result Device `json:"result"`
		}
		if err := c.doSigned("GET", "/v1.0/devices/"+deviceID, nil, accessToken, &body); err != nil {
			return err
		}
		dev = body.Result
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.deviceCache[deviceID] = cachedDevice{device: dev, cachedAt: time.Now()}
	c.mu.Unlock()
	return &dev, nil
}

// LocalKey is a convenience wrapper around Device for the common case of
// wanting just the 16-byte local key to build a tuya.Config.
func (c *Client) LocalKey(deviceID string) (string, error) {
	dev, err := c.Device(deviceID)
	if err != nil {
		return "", err
	}
	return dev.LocalKey, nil
}

// Specification fetches a device's data-point schema.
func (c *Client) Specification(deviceID string) (*Specification, error) {
	accessToken, err := c.ensureToken()
	if err != nil {
		return nil, err
	}
	var spec Specification
	err = c.withRetry(func() error {
		var body struct {
			Result Specification `json:"result"`
		}
		if err := c.doSigned("GET", "/v1.0/devices/"+deviceID+"/specification", nil, accessToken, &body); err != nil {
			return err
		}
		spec = body.Result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &spec, nil
}

// InvalidateDeviceCache clears any cached device metadata, forcing the
// next Device/LocalKey call to hit the network.
func (c *Client) InvalidateDeviceCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceCache = make(map[string]cachedDevice)
}

func randomNonce() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
