package main

import (
	"bytes"
	"encoding/hex"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuthenticatorAcceptsValidSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	auth := NewAuthenticator(map[string]string{"k1": "s1"}, 2*time.Minute, func() time.Time { return now })

	body := []byte(`{"tradeId":"t1"}`)
	timestamp := strconv.FormatInt(now.Unix(), 10)
	req := httptest.NewRequest("POST", "/trades", bytes.NewReader(body))
	req.Header.Set(HeaderAPIKey, "k1")
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderNonce, "n1")
	sig := ComputeSignature("s1", timestamp, "n1", "POST", "/trades", body)
	req.Header.Set(HeaderSignature, hex.EncodeToString(sig))

	principal, err := auth.Authenticate(req, body)
	require.NoError(t, err)
	require.Equal(t, "k1", principal.APIKey)
}

func TestAuthenticatorRejectsReplayedNonce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	auth := NewAuthenticator(map[string]string{"k1": "s1"}, 2*time.Minute, func() time.Time { return now })

	body := []byte(`{}`)
	timestamp := strconv.FormatInt(now.Unix(), 10)
	sig := hex.EncodeToString(ComputeSignature("s1", timestamp, "n1", "POST", "/trades", body))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/trades", bytes.NewReader(body))
		req.Header.Set(HeaderAPIKey, "k1")
		req.Header.Set(HeaderTimestamp, timestamp)
		req.Header.Set(HeaderNonce, "n1")
		req.Header.Set(HeaderSignature, sig)
		_, err := auth.Authenticate(req, body)
		if i == 0 {
			require.NoError(t, err)
		} else {
			require.ErrorContains(t, err, "nonce already used")
		}
	}
}

func TestAuthenticatorRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	auth := NewAuthenticator(map[string]string{"k1": "s1"}, 2*time.Minute, func() time.Time { return now })

	body := []byte(`{}`)
	stale := strconv.FormatInt(now.Add(-5*time.Minute).Unix(), 10)
	req := httptest.NewRequest("POST", "/trades", bytes.NewReader(body))
	req.Header.Set(HeaderAPIKey, "k1")
	req.Header.Set(HeaderTimestamp, stale)
	req.Header.Set(HeaderNonce, "n1")
	sig := ComputeSignature("s1", stale, "n1", "POST", "/trades", body)
	req.Header.Set(HeaderSignature, hex.EncodeToString(sig))

	_, err := auth.Authenticate(req, body)
	require.ErrorContains(t, err, "timestamp outside allowed skew")
}

func TestAuthenticatorRejectsUnknownKey(t *testing.T) {
	auth := NewAuthenticator(map[string]string{"k1": "s1"}, 2*time.Minute, nil)

	req := httptest.NewRequest("POST", "/trades", bytes.NewReader(nil))
	req.Header.Set(HeaderAPIKey, "other")
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set(HeaderNonce, "n1")
	req.Header.Set(HeaderSignature, "00")

	_, err := auth.Authenticate(req, nil)
	require.ErrorContains(t, err, "unknown API key")
}
