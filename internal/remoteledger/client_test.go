package remoteledger_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarkoPoloResearchLab/gacha/internal/remoteledger"
	"github.com/MarkoPoloResearchLab/gacha/pkg/market"
)

func TestApplySendsBundledMutation(test *testing.T) {
	test.Parallel()

	type received struct {
		idempotencyKey string
		body           map[string]any
	}
	var got received
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		got.idempotencyKey = request.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(request.Body).Decode(&got.body); err != nil {
			test.Errorf("decode body: %v", err)
		}
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := remoteledger.New(server.URL)
	if err != nil {
		test.Fatalf("New: %v", err)
	}

	apply := market.RemoteApply{
		OperationID: "op-1",
		UserID:      "user-1",
		PointsDelta: -200,
		CardGrants: []market.CardGrant{
			{CollectionID: "col-1", CardID: "card-1", Quantity: 2},
		},
	}
	if err := client.Apply(context.Background(), apply); err != nil {
		test.Fatalf("Apply: %v", err)
	}

	if got.idempotencyKey != "op-1" {
		test.Fatalf("expected Idempotency-Key op-1, got %q", got.idempotencyKey)
	}
	if got.body["operation_id"] != "op-1" || got.body["user_id"] != "user-1" {
		test.Fatalf("unexpected body: %+v", got.body)
	}
	if got.body["points_delta"].(float64) != -200 {
		test.Fatalf("unexpected points delta: %v", got.body["points_delta"])
	}
	grants := got.body["card_grants"].([]any)
	if len(grants) != 1 {
		test.Fatalf("expected one grant, got %v", grants)
	}
}

func TestApplyMapsFailuresToRemoteServiceError(test *testing.T) {
	test.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		http.Error(writer, "ledger unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := remoteledger.New(server.URL)
	if err != nil {
		test.Fatalf("New: %v", err)
	}
	if err := client.Apply(context.Background(), market.RemoteApply{OperationID: "op-1"}); !errors.Is(err, market.ErrRemoteService) {
		test.Fatalf("expected ErrRemoteService, got %v", err)
	}

	closed := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	closed.Close()
	unreachable, err := remoteledger.New(closed.URL)
	if err != nil {
		test.Fatalf("New: %v", err)
	}
	if err := unreachable.Apply(context.Background(), market.RemoteApply{OperationID: "op-2"}); !errors.Is(err, market.ErrRemoteService) {
		test.Fatalf("expected ErrRemoteService for connection failure, got %v", err)
	}
}

func TestNewRequiresBaseURL(test *testing.T) {
	test.Parallel()

	if _, err := remoteledger.New(""); !errors.Is(err, remoteledger.ErrInvalidClientConfig) {
		test.Fatalf("expected ErrInvalidClientConfig, got %v", err)
	}
}
