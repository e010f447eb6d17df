// Package directory предоставляет клиенты справочных сервисов читателей и книг.
package directory

import (
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const requestTimeout = 5 * time.Second

// normalizeBaseURL приводит адрес сервиса к виду со схемой и без завершающего слэша.
func normalizeBaseURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return ""
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return base
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: requestTimeout,
	}
}
