package rpc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/golem-base/golemsql"
)

func newTestServer(t *testing.T, handler func(method string, params []json.RawMessage) (any, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
			return
		}
		var req struct {
			JSONRPC string            `json:"jsonrpc"`
			ID      uint64            `json:"id"`
			Method  string            `json:"method"`
			Params  []json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("jsonrpc version = %q", req.JSONRPC)
		}

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func TestClientCreateEntities(t *testing.T) {
	server := newTestServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		if method != methodCreateEntities {
			t.Errorf("method = %q", method)
		}
		var entities []golemsql.Entity
		if err := json.Unmarshal(params[0], &entities); err != nil {
			t.Errorf("decode entities: %v", err)
		}
		if len(entities) != 1 || entities[0].BTL != 42 {
			t.Errorf("entities = %+v", entities)
		}
		return []golemsql.Receipt{{Key: "0xabc", ExpirationBlock: 100}}, nil
	})
	defer server.Close()

	client := NewClient(server.URL, "key", zap.NewNop())
	receipts, err := client.CreateEntities(context.Background(), []golemsql.Entity{{
		Payload:            []byte(`{}`),
		BTL:                42,
		StringAnnotations:  map[string]string{"row_type": "json"},
		NumericAnnotations: map[string]uint64{},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(receipts) != 1 || receipts[0].Key != "0xabc" || receipts[0].ExpirationBlock != 100 {
		t.Errorf("receipts = %+v", receipts)
	}
}

func TestClientQueryEntities(t *testing.T) {
	server := newTestServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		var predicate string
		if err := json.Unmarshal(params[0], &predicate); err != nil {
			t.Errorf("decode predicate: %v", err)
		}
		if predicate != `row_type="json"` {
			t.Errorf("predicate = %q", predicate)
		}
		return []golemsql.QueryResult{{Key: "0x1", Value: []byte(`{"a":1}`)}}, nil
	})
	defer server.Close()

	client := NewClient(server.URL, "key", zap.NewNop())
	results, err := client.QueryEntities(context.Background(), `row_type="json"`)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Key != "0x1" {
		t.Errorf("results = %+v", results)
	}
}

func TestClientRPCError(t *testing.T) {
	server := newTestServer(t, func(method string, params []json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "no funds"}
	})
	defer server.Close()

	client := NewClient(server.URL, "key", zap.NewNop())
	_, err := client.GetAccountAddress(context.Background())
	if err == nil {
		t.Fatal("expected rpc error")
	}
	if got := err.Error(); !strings.Contains(got, "no funds") {
		t.Errorf("original message lost: %q", got)
	}
}

func TestClientHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", zap.NewNop())
	if _, err := client.QueryEntities(context.Background(), "x=1"); err == nil {
		t.Fatal("expected HTTP error")
	}
}
