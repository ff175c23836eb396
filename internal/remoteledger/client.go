// Package remoteledger calls the remote bounded context that owns the
// user-facing card and point ledger. Each coordinator operation maps to one
// POST carrying everything the remote side must apply atomically.
package remoteledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/gacha/pkg/market"
)

const (
	applyPath            = "/v1/ledger/apply"
	headerIdempotencyKey = "Idempotency-Key"
	headerContentType    = "Content-Type"
	contentTypeJSON      = "application/json"
	defaultTimeout       = 5 * time.Second
)

// ErrInvalidClientConfig reports a bad constructor argument.
var ErrInvalidClientConfig = errors.New("invalid remote ledger client config")

// Client implements market.RemoteLedger over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

// New builds a Client for the remote ledger at baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidClientConfig)
	}
	client := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}

type applyRequest struct {
	OperationID string           `json:"operation_id"`
	UserID      string           `json:"user_id"`
	PointsDelta int64            `json:"points_delta"`
	CardGrants  []applyCardGrant `json:"card_grants"`
}

type applyCardGrant struct {
	CollectionID string `json:"collection_id"`
	CardID       string `json:"card_id"`
	Quantity     int64  `json:"quantity"`
}

// Apply sends one bundled mutation. The operation id rides both in the body
// and the Idempotency-Key header so retried deliveries apply once.
func (client *Client) Apply(ctx context.Context, apply market.RemoteApply) error {
	payload := applyRequest{
		OperationID: apply.OperationID,
		UserID:      apply.UserID,
		PointsDelta: apply.PointsDelta,
		CardGrants:  make([]applyCardGrant, 0, len(apply.CardGrants)),
	}
	for _, grant := range apply.CardGrants {
		payload.CardGrants = append(payload.CardGrants, applyCardGrant{
			CollectionID: grant.CollectionID,
			CardID:       grant.CardID,
			Quantity:     grant.Quantity,
		})
	}
	body, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return marshalErr
	}

	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+applyPath, bytes.NewReader(body))
	if requestErr != nil {
		return requestErr
	}
	request.Header.Set(headerContentType, contentTypeJSON)
	request.Header.Set(headerIdempotencyKey, apply.OperationID)

	response, callErr := client.httpClient.Do(request)
	if callErr != nil {
		return fmt.Errorf("%w: %v", market.ErrRemoteService, callErr)
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(response.Body, 512))
	return fmt.Errorf("%w: status %d: %s", market.ErrRemoteService, response.StatusCode, string(detail))
}
