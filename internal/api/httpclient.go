package api

import (
	"fmt"
	"net/http"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// NewHTTPClient returns the client used for YouTube requests. With
// browserTLS the TLS handshake mimics a desktop browser, which YouTube
// challenges less often than the Go default fingerprint.
func NewHTTPClient(browserTLS bool, timeout time.Duration) (HTTPClient, error) {
	if !browserTLS {
		return &http.Client{Timeout: timeout}, nil
	}

	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutMilliseconds(int(timeout.Milliseconds())),
		tls_client.WithClientProfile(profiles.DefaultClientProfile),
		tls_client.WithRandomTLSExtensionOrder(),
		tls_client.WithCookieJar(tls_client.NewCookieJar()),
	}

	c, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tls client: %w", err)
	}
	return &browserClient{inner: c}, nil
}

// browserClient adapts a tls-client HttpClient to net/http types
type browserClient struct {
	inner tls_client.HttpClient
}

func (b *browserClient) Do(req *http.Request) (*http.Response, error) {
	fReq := &fhttp.Request{
		Method:        req.Method,
		URL:           req.URL,
		Proto:         req.Proto,
		ProtoMajor:    req.ProtoMajor,
		ProtoMinor:    req.ProtoMinor,
		Header:        make(fhttp.Header, len(req.Header)),
		Body:          req.Body,
		ContentLength: req.ContentLength,
		Host:          req.Host,
	}
	for k, v := range req.Header {
		fReq.Header[k] = v
	}
	fReq = fReq.WithContext(req.Context())

	resp, err := b.inner.Do(fReq)
	if err != nil {
		return nil, err
	}

	netResp := &http.Response{
		Status:           resp.Status,
		StatusCode:       resp.StatusCode,
		Proto:            resp.Proto,
		ProtoMajor:       resp.ProtoMajor,
		ProtoMinor:       resp.ProtoMinor,
		ContentLength:    resp.ContentLength,
		Body:             resp.Body,
		Header:           make(http.Header, len(resp.Header)),
		Uncompressed:     resp.Uncompressed,
		TransferEncoding: resp.TransferEncoding,
		Request:          req,
	}
	for k, v := range resp.Header {
		netResp.Header[k] = v
	}
	return netResp, nil
}
