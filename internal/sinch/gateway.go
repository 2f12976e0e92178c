package sinch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/constants"
	"github.com/openCoreEMR/oce-module-sinch-conversations/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
)

// Result is the outcome of one HTTP round trip that reached the vendor.
// Any status code is a Result, only transport failures are errors.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       map[string]interface{}
	Raw        []byte
}

// Gateway executes single HTTP requests against the vendor with a fixed
// timeout. It never fails on a non-2xx status; callers classify those.
// A circuit breaker around the transport fails fast while the vendor is
// unreachable; any HTTP status, even a 5xx, counts as reachable.
type Gateway struct {
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *logrus.Logger
}

func NewGateway(timeout time.Duration, logger *logrus.Logger) *Gateway {
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeoutSec * time.Second
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Gateway{
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.NewWithLogger("sinch-api", 5, 30*time.Second, logger),
		logger:  logger,
	}
}

// DoJSON sends payload (when non-nil) as a JSON body with a bearer token.
func (g *Gateway) DoJSON(ctx context.Context, method, endpoint, token string, payload interface{}) (*Result, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return g.do(req)
}

// DoForm sends a URL-encoded form with HTTP Basic credentials. Used for
// the OAuth client-credentials grant.
func (g *Gateway) DoForm(ctx context.Context, method, endpoint, username, password string, form url.Values) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(username, password)

	return g.do(req)
}

func (g *Gateway) do(req *http.Request) (*Result, error) {
	var resp *http.Response
	var raw []byte
	err := g.breaker.Execute(req.Context(), func(ctx context.Context) error {
		var doErr error
		resp, doErr = g.client.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()

		var readErr error
		raw, readErr = io.ReadAll(resp.Body)
		return readErr
	})
	if err != nil {
		return nil, err
	}

	// Parse failures leave an empty map so that error-message extraction
	// never itself fails on a malformed body.
	parsed := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			g.logger.WithFields(logrus.Fields{
				"status": resp.StatusCode,
				"url":    req.URL.Redacted(),
			}).Debug("Response body is not valid JSON")
			parsed = map[string]interface{}{}
		}
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       parsed,
		Raw:        raw,
	}, nil
}
