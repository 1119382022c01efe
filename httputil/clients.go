package httputil

import (
	"net/http"
	"net/url"
	"time"
)

// NewMediaClient builds the client used for photo downloads. Media pulls
// are slower than page fetches, hence the generous timeout. An optional
// proxy keeps download traffic on the same egress as the browser.
func NewMediaClient(proxyURL string) *http.Client {
	client := &http.Client{Timeout: 60 * time.Second}

	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			client.Transport = &http.Transport{
				Proxy:             http.ProxyURL(parsed),
				ForceAttemptHTTP2: false,
			}
		}
	}

	return client
}
