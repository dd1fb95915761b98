// Package restclient implements the one thin REST operation the core needs
// per exchange: fetch_depth_snapshot(symbol) -> text (§2). It is
// intentionally free of retries and parsing — collectors treat the
// response body as opaque text and forward it verbatim.
package restclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coachpo/meltica/errs"
)

const defaultTimeout = 10 * time.Second

// Fetcher fetches a depth snapshot for symbol and returns its raw body text.
type Fetcher func(ctx context.Context, symbol string) (string, error)

// New builds a Fetcher that issues an HTTPS GET against baseURL+path, with
// symbol substituted for the literal "{symbol}" placeholder in path (or, if
// path carries no placeholder, appended as the query parameter named by
// queryParam).
func New(exchange string, httpClient *http.Client, baseURL, path, queryParam string) Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return func(ctx context.Context, symbol string) (string, error) {
		reqURL := baseURL + path
		if strings.Contains(path, "{symbol}") {
			reqURL = baseURL + strings.ReplaceAll(path, "{symbol}", symbol)
		} else if queryParam != "" {
			u, err := url.Parse(reqURL)
			if err != nil {
				return "", errs.New(exchange, errs.KindSnapshotFetch, errs.WithSymbol(symbol), errs.WithCause(err))
			}
			q := u.Query()
			q.Set(queryParam, symbol)
			u.RawQuery = q.Encode()
			reqURL = u.String()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return "", errs.New(exchange, errs.KindSnapshotFetch, errs.WithSymbol(symbol), errs.WithCause(err))
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return "", errs.New(exchange, errs.KindSnapshotFetch, errs.WithSymbol(symbol), errs.WithCause(err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", errs.New(exchange, errs.KindSnapshotFetch, errs.WithSymbol(symbol), errs.WithCause(err))
		}
		if resp.StatusCode != http.StatusOK {
			return "", errs.New(exchange, errs.KindSnapshotFetch, errs.WithSymbol(symbol),
				errs.WithMessage("non-200 response"), errs.WithCause(errors.New(resp.Status)))
		}
		return string(body), nil
	}
}
