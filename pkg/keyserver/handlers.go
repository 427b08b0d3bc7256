package keyserver

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zephyrmesh/zephyr-node/pkg/crypto"
	"github.com/zephyrmesh/zephyr-node/pkg/storage"
)

// PublishRequest carries a device's key bundle upload
type PublishRequest struct {
	IdentityKey string            `json:"identityKey" binding:"required"`
	OneTimeKeys map[string]string `json:"oneTimeKeys"`
}

// PublishResponse reports how many keys the server now holds
type PublishResponse struct {
	Success         bool `json:"success"`
	OneTimeKeyCount int  `json:"oneTimeKeyCount"`
}

// ClaimResponse hands out one key bundle for session establishment
type ClaimResponse struct {
	Success     bool   `json:"success"`
	DeviceID    string `json:"deviceId"`
	IdentityKey string `json:"identityKey"`
	KeyID       string `json:"keyId"`
	OneTimeKey  string `json:"oneTimeKey"`
}

// CountResponse reports remaining one-time keys for a device
type CountResponse struct {
	DeviceID        string `json:"deviceId"`
	OneTimeKeyCount int    `json:"oneTimeKeyCount"`
}

// handlePublish handles POST /api/v1/keys/:deviceID
func (s *Server) handlePublish(c *gin.Context) {
	deviceID := c.Param("deviceID")

	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	identityKey, err := crypto.Curve25519PublicKeyFromBase64(req.IdentityKey)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid identity key",
			Message: "Identity key must be an unpadded base64 Curve25519 key",
		})
		return
	}

	oneTimeKeys := make([]storage.OneTimeKey, 0, len(req.OneTimeKeys))
	for keyID, encoded := range req.OneTimeKeys {
		key, err := crypto.Curve25519PublicKeyFromBase64(encoded)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid one-time key",
				Message: fmt.Sprintf("Key %s is not a valid Curve25519 key", keyID),
			})
			return
		}
		oneTimeKeys = append(oneTimeKeys, storage.OneTimeKey{KeyID: keyID, Key: key})
	}

	if err := s.db.PublishIdentityKey(deviceID, identityKey); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to store identity key",
			Message: err.Error(),
		})
		return
	}

	if len(oneTimeKeys) > 0 {
		if err := s.db.PublishOneTimeKeys(deviceID, oneTimeKeys); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "Failed to store one-time keys",
				Message: err.Error(),
			})
			return
		}
	}

	count, err := s.db.CountUnclaimedKeys(deviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to count keys",
			Message: err.Error(),
		})
		return
	}

	fmt.Printf("🔑 Published bundle: device=%s keys=%d\n", deviceID, count)

	c.JSON(http.StatusOK, PublishResponse{
		Success:         true,
		OneTimeKeyCount: count,
	})
}

// handleClaim handles POST /api/v1/keys/:deviceID/claim
func (s *Server) handleClaim(c *gin.Context) {
	deviceID := c.Param("deviceID")

	identityKey, err := s.db.GetIdentityKey(deviceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Unknown device",
				Message: fmt.Sprintf("No key bundle published for device %s", deviceID),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to load identity key",
			Message: err.Error(),
		})
		return
	}

	oneTimeKey, err := s.db.ClaimOneTimeKey(deviceID)
	if err != nil {
		if errors.Is(err, storage.ErrNoKeysLeft) {
			c.JSON(http.StatusGone, ErrorResponse{
				Error:   "No one-time keys left",
				Message: fmt.Sprintf("Device %s has exhausted its one-time keys", deviceID),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to claim key",
			Message: err.Error(),
		})
		return
	}

	fmt.Printf("🔑 Claimed key: device=%s keyId=%s\n", deviceID, oneTimeKey.KeyID)

	c.JSON(http.StatusOK, ClaimResponse{
		Success:     true,
		DeviceID:    deviceID,
		IdentityKey: identityKey.Base64(),
		KeyID:       oneTimeKey.KeyID,
		OneTimeKey:  oneTimeKey.Key.Base64(),
	})
}

// handleCount handles GET /api/v1/keys/:deviceID/count
func (s *Server) handleCount(c *gin.Context) {
	deviceID := c.Param("deviceID")

	count, err := s.db.CountUnclaimedKeys(deviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to count keys",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, CountResponse{
		DeviceID:        deviceID,
		OneTimeKeyCount: count,
	})
}

// handleIdentity handles GET /api/v1/keys/:deviceID/identity
func (s *Server) handleIdentity(c *gin.Context) {
	deviceID := c.Param("deviceID")

	identityKey, err := s.db.GetIdentityKey(deviceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Unknown device",
				Message: fmt.Sprintf("No identity key published for device %s", deviceID),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to load identity key",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deviceId":    deviceID,
		"identityKey": identityKey.Base64(),
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}
