package paytiko

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

	"github.com/gofiber/fiber/v2/log"
)

const (
	headerMerchantSecret = "X-Merchant-Secret"
	hiddenSecret         = "***HIDDEN***"

	maxResponseBody = 2 << 20
)

// Client performs authenticated calls against the Paytiko core API.
type Client struct {
	cfg        Config
	HTTPClient *http.Client
}

// NewClient creates a gateway client. A nil httpClient is replaced by one
// built from the configured timeouts.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(cfg)
	}
	return &Client{cfg: cfg, HTTPClient: httpClient}
}

// Config returns the settings this client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

// messageKeys lists the body fields consulted, in order, when turning a
// failed response into a message.
type messageKeys []string

var (
	titleOnly         = messageKeys{"title"}
	errorMessageFirst = messageKeys{"errorMessage", "title"}
)

// do sends a request and decodes a JSON object body. Any network failure or
// non-2xx status is returned as *TransportError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, keys messageKeys) (map[string]any, error) {
	endpoint := c.cfg.baseURL() + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode paytiko request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &TransportError{Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerMerchantSecret, c.cfg.MerchantSecretKey)

	if c.cfg.LoggingEnabled {
		log.Debugw("paytiko request",
			"method", method,
			"url", endpoint,
			"headers", map[string]string{"Content-Type": "application/json", headerMerchantSecret: hiddenSecret},
			"merchant_secret_length", len(c.cfg.MerchantSecretKey),
		)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	data := decodeObject(raw)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("%s %s returned status %d", method, path, resp.StatusCode)
		for _, k := range keys {
			if s, ok := data[k].(string); ok && strings.TrimSpace(s) != "" {
				msg = s
				break
			}
		}
		return nil, &TransportError{StatusCode: resp.StatusCode, Message: msg, Data: data}
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

func decodeObject(raw []byte) map[string]any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return out
}

// asTransportError unwraps err into a *TransportError, wrapping foreign
// errors so callers always have a message and optional body.
func asTransportError(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return &TransportError{Message: err.Error(), Err: err}
}
