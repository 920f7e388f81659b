package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	userIDHeader  = "X-User-ID"
	beaconTimeout = 5 * time.Second
)

type SessionRequest struct {
	UserID           string `json:"userId"`
	ClientInstanceID string `json:"clientInstanceId"`
	Displace         bool   `json:"displace,omitempty"`
}

type RegisterResponse struct {
	Admitted                 bool     `json:"admitted"`
	LiveCount                int64    `json:"liveCount"`
	Displaced                []string `json:"displaced"`
	HeartbeatIntervalSeconds int      `json:"heartbeatIntervalSeconds"`
}

type Validation struct {
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason,omitempty"`
	Timeout bool   `json:"timeout,omitempty"`
}

// Transport carries the liveness protocol to the session service.
type Transport interface {
	Register(ctx context.Context, req SessionRequest) (*RegisterResponse, error)
	Heartbeat(ctx context.Context, req SessionRequest) error
	Remove(ctx context.Context, req SessionRequest) error
	Validate(ctx context.Context, userID, instanceID string) (*Validation, error)
}

// Beaconer sends a remove without waiting for it. Beacon reports false
// when the send could not even be attempted.
type Beaconer interface {
	Beacon(req SessionRequest) bool
}

// HTTPTransport speaks the JSON protocol of the session service.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

func (t *HTTPTransport) Register(ctx context.Context, req SessionRequest) (*RegisterResponse, error) {
	var out RegisterResponse
	if err := t.post(ctx, "/api/sessions/register", req, "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *HTTPTransport) Heartbeat(ctx context.Context, req SessionRequest) error {
	return t.post(ctx, "/api/sessions/heartbeat", req, "application/json", nil)
}

func (t *HTTPTransport) Remove(ctx context.Context, req SessionRequest) error {
	return t.post(ctx, "/api/sessions/remove", req, "application/json", nil)
}

func (t *HTTPTransport) Validate(ctx context.Context, userID, instanceID string) (*Validation, error) {
	q := url.Values{}
	q.Set("userId", userID)
	if instanceID != "" {
		q.Set("clientInstanceId", instanceID)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/api/sessions/validate?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set(userIDHeader, userID)

	var out Validation
	if err := t.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Beacon posts the remove as text/plain from a detached goroutine, the
// way page-unload beacons are sent. The caller never waits for it.
func (t *HTTPTransport) Beacon(req SessionRequest) bool {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
		defer cancel()
		if err := t.post(ctx, "/api/sessions/remove", req, "text/plain;charset=UTF-8", nil); err != nil {
			log.WithError(err).WithField("instance_id", req.ClientInstanceID).Debug("Remove beacon failed")
		}
	}()
	return true
}

func (t *HTTPTransport) post(ctx context.Context, path string, body SessionRequest, contentType string, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set(userIDHeader, body.UserID)
	return t.do(httpReq, out)
}

func (t *HTTPTransport) do(req *http.Request, out interface{}) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &StatusError{Code: resp.StatusCode, Message: fmt.Sprintf("undecodable response: %v", err)}
	}

	if resp.StatusCode == http.StatusConflict {
		var refusal struct {
			Scope  string `json:"scope"`
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(env.Data, &refusal)
		return &ConflictError{Scope: refusal.Scope, Reason: refusal.Reason}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}

	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}
