package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
)

const signatureHeader = "X-Sinch-Webhook-Signature"

// verifySignature reads the request body and checks its HMAC-SHA256
// signature against the webhook secret. The body is restored on the
// request so handlers can decode it afterwards. An empty secret skips
// verification outside production.
func verifySignature(r *http.Request, secretKey string) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	if secretKey == "" {
		if os.Getenv("OCE_SINCH_ENV") == "production" {
			return nil, fmt.Errorf("webhook secret is required in production mode")
		}
		return body, nil
	}

	signature := r.Header.Get(signatureHeader)
	if signature == "" {
		return nil, fmt.Errorf("missing signature header: %s", signatureHeader)
	}

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, fmt.Errorf("signature mismatch")
	}

	return body, nil
}
