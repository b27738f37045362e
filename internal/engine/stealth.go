package engine

import (
	"net/http"

	stealth "github.com/anatolykoptev/go-stealth"
)

// SetBrowserHeaders makes req look like a desktop Chrome navigation.
// Accept-Encoding is left to the transport so gzip bodies are decoded transparently.
func SetBrowserHeaders(req *http.Request) {
	for k, v := range stealth.ChromeHeaders() {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", stealth.RandomUserAgent())
	req.Header.Del("Accept-Encoding")
}
