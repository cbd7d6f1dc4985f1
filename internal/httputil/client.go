package httputil

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout = 20 * time.Second

	// GRIB order files run to tens of megabytes, so downloads get a
	// much longer deadline than API calls.
	DownloadTimeout = 240 * time.Second
)

// NewClient returns an HTTP client with standard timeout configuration.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
	}
}

// NewDownloadClient returns an HTTP client sized for bulk file downloads.
func NewDownloadClient() *http.Client {
	return &http.Client{
		Timeout: DownloadTimeout,
	}
}
