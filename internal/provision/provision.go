// internal/provision/provision.go
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Client calls the external room-provisioning service over HTTP. It
// implements lobby.Provisioner. Idempotency is the matchmaking core's
// responsibility (the in-flight flag); the request id exists so the room
// service can correlate retries in its logs, not to dedupe.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logrus.Logger
}

// NewClient builds a provisioning client against the service base URL.
func NewClient(baseURL string, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

type createRoomRequest struct {
	RequestID string `json:"request_id"`
	Name      string `json:"name"`
	Format    string `json:"format"`
	IsPublic  bool   `json:"is_public"`
}

type createRoomResponse struct {
	RoomLink string `json:"room_link"`
}

// CreateRoom asks the room service for a playable room and returns its
// link.
func (c *Client) CreateRoom(ctx context.Context, name, format string, public bool) (string, error) {
	reqID := uuid.NewString()
	body, err := json.Marshal(createRoomRequest{
		RequestID: reqID,
		Name:      name,
		Format:    format,
		IsPublic:  public,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal room request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rooms", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build room request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("room service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("room service returned %d for request %s", resp.StatusCode, reqID)
	}

	var out createRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode room response: %w", err)
	}
	if out.RoomLink == "" {
		return "", fmt.Errorf("room service returned no link for request %s", reqID)
	}
	c.log.Infof("provisioned room %s (request %s)", out.RoomLink, reqID)
	return out.RoomLink, nil
}
