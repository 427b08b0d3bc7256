package keyserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zephyrmesh/zephyr-node/pkg/crypto"
	"github.com/zephyrmesh/zephyr-node/pkg/storage"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	db, err := storage.NewSessionDB(filepath.Join(t.TempDir(), "keyserver.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	server, err := NewServer(db, DefaultConfig())
	assert.NoError(t, err)

	return server
}

func publishBundle(t *testing.T, server *Server, deviceID string, oneTimeKeys int) crypto.Curve25519PublicKey {
	t.Helper()

	identity, err := crypto.GenerateCurve25519KeyPair()
	assert.NoError(t, err)

	req := PublishRequest{
		IdentityKey: identity.Public.Base64(),
		OneTimeKeys: make(map[string]string),
	}
	for i := 0; i < oneTimeKeys; i++ {
		kp, err := crypto.GenerateCurve25519KeyPair()
		assert.NoError(t, err)
		req.OneTimeKeys[fmt.Sprintf("AAAAA%c", 'a'+i)] = kp.Public.Base64()
	}

	reqBody, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/api/v1/keys/"+deviceID, bytes.NewReader(reqBody))
	httpReq.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, httpReq)
	assert.Equal(t, http.StatusOK, w.Code)

	var response PublishResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, oneTimeKeys, response.OneTimeKeyCount)

	return identity.Public
}

// TestPublishClaimFlow tests the complete publish/claim lifecycle
func TestPublishClaimFlow(t *testing.T) {
	server := testServer(t)
	deviceID := "device-alice"
	identityKey := publishBundle(t, server, deviceID, 2)

	t.Run("Claim", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/keys/"+deviceID+"/claim", nil)
		w := httptest.NewRecorder()

		server.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		var response ClaimResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.True(t, response.Success)
		assert.Equal(t, deviceID, response.DeviceID)
		assert.Equal(t, identityKey.Base64(), response.IdentityKey)
		assert.NotEmpty(t, response.KeyID)

		// The claimed key must parse back into a Curve25519 key
		_, err := crypto.Curve25519PublicKeyFromBase64(response.OneTimeKey)
		assert.NoError(t, err)
	})

	t.Run("Count", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/keys/"+deviceID+"/count", nil)
		w := httptest.NewRecorder()

		server.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		var response CountResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 1, response.OneTimeKeyCount)
	})

	t.Run("Exhaustion", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/keys/"+deviceID+"/claim", nil)
		w := httptest.NewRecorder()
		server.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		// Pool is now empty
		req = httptest.NewRequest("POST", "/api/v1/keys/"+deviceID+"/claim", nil)
		w = httptest.NewRecorder()
		server.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusGone, w.Code)
	})
}

// TestClaimUnknownDevice verifies claiming from an unpublished device fails
func TestClaimUnknownDevice(t *testing.T) {
	server := testServer(t)

	req := httptest.NewRequest("POST", "/api/v1/keys/nobody/claim", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var response ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Unknown device", response.Error)
}

// TestPublishValidation verifies malformed bundles are rejected
func TestPublishValidation(t *testing.T) {
	server := testServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing identity key", `{"oneTimeKeys":{}}`},
		{"malformed identity key", `{"identityKey":"not base64!!"}`},
		{"short identity key", `{"identityKey":"AAAA"}`},
		{"malformed one-time key", fmt.Sprintf(
			`{"identityKey":%q,"oneTimeKeys":{"AAAAAa":"bogus"}}`,
			mustKey(t).Base64(),
		)},
		{"not json", `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/keys/device-x", bytes.NewReader([]byte(tt.body)))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			server.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

// TestIdentityEndpoint verifies identity key lookup
func TestIdentityEndpoint(t *testing.T) {
	server := testServer(t)
	identityKey := publishBundle(t, server, "device-bob", 0)

	req := httptest.NewRequest("GET", "/api/v1/keys/device-bob/identity", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, identityKey.Base64(), response["identityKey"])
}

// TestHealthEndpoint verifies the health check responds
func TestHealthEndpoint(t *testing.T) {
	server := testServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	server.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

// TestServerConfigTimeouts verifies configured timeouts reach the HTTP server
func TestServerConfigTimeouts(t *testing.T) {
	db, err := storage.NewSessionDB(filepath.Join(t.TempDir(), "keyserver.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	server, err := NewServer(db, &Config{
		Port:         0,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 7 * time.Second,
	})
	assert.NoError(t, err)
	assert.Equal(t, 3*time.Second, server.readTimeout)
	assert.Equal(t, 7*time.Second, server.writeTimeout)

	// Unset timeouts fall back to the defaults
	fallback, err := NewServer(db, &Config{Port: 0})
	assert.NoError(t, err)
	assert.Equal(t, DefaultConfig().ReadTimeout, fallback.readTimeout)
	assert.Equal(t, DefaultConfig().WriteTimeout, fallback.writeTimeout)
}

// TestServerStartReturnsAfterShutdown verifies Start blocks until graceful
// shutdown finishes, so callers can safely release resources afterwards
func TestServerStartReturnsAfterShutdown(t *testing.T) {
	db, err := storage.NewSessionDB(filepath.Join(t.TempDir(), "keyserver.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	config := DefaultConfig()
	config.Port = 0 // ephemeral port
	server, err := NewServer(db, config)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func mustKey(t *testing.T) crypto.Curve25519PublicKey {
	t.Helper()
	kp, err := crypto.GenerateCurve25519KeyPair()
	assert.NoError(t, err)
	return kp.Public
}
