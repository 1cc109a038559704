package crcomponents

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"time"

	"github.com/Crunch-io/scrunch/interfaces"
	"github.com/Crunch-io/scrunch/internal"
)

// DefaultConnectTimeout is the HTTP connection timeout that is used if
// HTTPConfigurationBuilder.ConnectTimeout is not set.
const DefaultConnectTimeout = 10 * time.Second

// HTTPConfigurationBuilder contains methods for configuring the client's
// networking behavior.
//
// If you want to set non-default values for any of these properties, create a
// builder with crcomponents.HTTPConfiguration(), change its properties with the
// HTTPConfigurationBuilder methods, and store it in Config.HTTP:
//
//	config := scrunch.Config{
//	    HTTP: crcomponents.HTTPConfiguration().ConnectTimeout(3 * time.Second),
//	}
type HTTPConfigurationBuilder struct {
	connectTimeout time.Duration
	caCerts        []*x509.Certificate
	proxyURL       string
	customHeaders  map[string]string
	userAgent      string
}

// HTTPConfiguration returns a configuration builder for the client's networking
// configuration.
//
// The default configuration uses a 10-second connection timeout, no proxy, and
// the system certificate pool.
func HTTPConfiguration() *HTTPConfigurationBuilder {
	return &HTTPConfigurationBuilder{
		connectTimeout: DefaultConnectTimeout,
		customHeaders:  make(map[string]string),
	}
}

// ConnectTimeout sets the maximum duration to wait for the entire request
// round-trip, including connection establishment.
func (b *HTTPConfigurationBuilder) ConnectTimeout(connectTimeout time.Duration) *HTTPConfigurationBuilder {
	if connectTimeout <= 0 {
		b.connectTimeout = DefaultConnectTimeout
	} else {
		b.connectTimeout = connectTimeout
	}
	return b
}

// CACert specifies a CA certificate to be added to the trusted root CA list for
// HTTPS requests, in PEM format.
func (b *HTTPConfigurationBuilder) CACert(certData []byte) *HTTPConfigurationBuilder {
	certs, _ := parsePEMCertificates(certData)
	if certs == nil {
		// An invalid certificate is surfaced later, when the configuration is built,
		// so that builder method chains do not need error returns.
		b.caCerts = append(b.caCerts, nil)
	} else {
		b.caCerts = append(b.caCerts, certs...)
	}
	return b
}

// CACertFile is like CACert but reads the certificate data from a file.
func (b *HTTPConfigurationBuilder) CACertFile(filePath string) *HTTPConfigurationBuilder {
	data, err := os.ReadFile(filePath)
	if err != nil {
		b.caCerts = append(b.caCerts, nil)
		return b
	}
	return b.CACert(data)
}

// ProxyURL specifies a proxy URL to be used for all requests, overriding any
// system proxy environment variables.
func (b *HTTPConfigurationBuilder) ProxyURL(proxyURL string) *HTTPConfigurationBuilder {
	b.proxyURL = proxyURL
	return b
}

// Header specifies a custom header to be added to all requests. This may be
// helpful if you are using a gateway or proxy that requires a particular header
// in requests.
func (b *HTTPConfigurationBuilder) Header(name, value string) *HTTPConfigurationBuilder {
	b.customHeaders[name] = value
	return b
}

// UserAgent overrides the default User-Agent header.
func (b *HTTPConfigurationBuilder) UserAgent(userAgent string) *HTTPConfigurationBuilder {
	b.userAgent = userAgent
	return b
}

// CreateHTTPConfiguration is called internally by Connect.
func (b *HTTPConfigurationBuilder) CreateHTTPConfiguration(
	basic interfaces.BasicConfiguration,
) (interfaces.HTTPConfiguration, error) {
	var certPool *x509.CertPool
	if len(b.caCerts) > 0 {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		for _, cert := range b.caCerts {
			if cert == nil {
				return interfaces.HTTPConfiguration{}, errors.New("invalid CA certificate data")
			}
			pool.AddCert(cert)
		}
		certPool = pool
	}

	var proxy func(*http.Request) (*url.URL, error)
	if b.proxyURL != "" {
		parsed, err := url.Parse(b.proxyURL)
		if err != nil {
			return interfaces.HTTPConfiguration{}, fmt.Errorf("invalid proxy URL: %w", err)
		}
		proxy = http.ProxyURL(parsed)
	}

	headers := make(http.Header)
	if basic.APIKey != "" {
		headers.Set("Authorization", "Bearer "+basic.APIKey)
	}
	userAgent := b.userAgent
	if userAgent == "" {
		userAgent = internal.UserAgent
	}
	headers.Set("User-Agent", userAgent)
	for k, v := range b.customHeaders {
		headers.Set(k, v)
	}

	connectTimeout := b.connectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	clientFactory := func() *http.Client {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if proxy != nil {
			transport.Proxy = proxy
		}
		if certPool != nil {
			transport.TLSClientConfig = &tls.Config{RootCAs: certPool} //nolint:gosec // modern TLS defaults apply
		}
		// Password-authenticated sessions are tracked with a cookie, so every
		// client carries a jar even when an API key is in use.
		jar, _ := cookiejar.New(nil)
		return &http.Client{
			Timeout:   connectTimeout,
			Transport: transport,
			Jar:       jar,
		}
	}

	return interfaces.HTTPConfiguration{
		DefaultHeaders:   headers,
		CreateHTTPClient: clientFactory,
	}, nil
}

func parsePEMCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("invalid CA certificate data")
	}
	return certs, nil
}
