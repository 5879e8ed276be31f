package paytiko

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultCoreURL  = "https://core.paytiko.com"
	DefaultCurrency = "USD"
)

// Config is the settings value handed to every Paytiko component at
// construction. Components never consult globals or the environment.
type Config struct {
	MerchantSecretKey string
	CoreURL           string
	DefaultCurrency   string

	WebhookURL         string
	SuccessRedirectURL string
	FailedRedirectURL  string

	VerifySignature bool
	// SignatureTolerance is carried for parity with the gateway settings. The
	// webhook digest covers only the order id, so there is no timestamp to check.
	SignatureTolerance time.Duration

	HTTPTimeout        time.Duration
	HTTPConnectTimeout time.Duration
	HTTPVerifyTLS      bool

	LoggingEnabled bool
	LogLevel       string
}

// DefaultConfig returns the gateway defaults with signature verification on.
func DefaultConfig() Config {
	return Config{
		CoreURL:            DefaultCoreURL,
		DefaultCurrency:    DefaultCurrency,
		VerifySignature:    true,
		SignatureTolerance: 300 * time.Second,
		HTTPTimeout:        30 * time.Second,
		HTTPConnectTimeout: 10 * time.Second,
		HTTPVerifyTLS:      true,
		LoggingEnabled:     true,
		LogLevel:           "info",
	}
}

// Validate reports settings the gateway cannot work without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.MerchantSecretKey) == "" {
		return errors.New("PAYTIKO_MERCHANT_SECRET_KEY is not configured")
	}
	if strings.TrimSpace(c.CoreURL) == "" {
		return errors.New("PAYTIKO_CORE_URL is not configured")
	}
	return nil
}

func (c Config) baseURL() string {
	return strings.TrimRight(strings.TrimSpace(c.CoreURL), "/")
}

func (c Config) currency() string {
	if cur := strings.TrimSpace(c.DefaultCurrency); cur != "" {
		return strings.ToUpper(cur)
	}
	return DefaultCurrency
}

// NewHTTPClient builds the outbound client honoring the total and connect
// timeouts and the TLS verification flag.
func NewHTTPClient(cfg Config) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.HTTPConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.HTTPConnectTimeout,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if !cfg.HTTPVerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-out for UAT hosts
	}
	return &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: transport,
	}
}
