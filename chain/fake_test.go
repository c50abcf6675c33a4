package chain

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// fakeRPCServer serves canned JSON-RPC responses keyed by method name and
// counts the requests it receives.
type fakeRPCServer struct {
	*httptest.Server

	calls atomic.Int64
	// failFirst makes the server answer HTTP 500 for the first n requests.
	failFirst int64
	// results maps JSON-RPC method names to hex-encoded result payloads.
	results map[string]string
}

// newFakeRPCServer returns a fake JSON-RPC server answering with the given
// per-method results. The server is closed automatically when the test ends.
func newFakeRPCServer(t *testing.T, results map[string]string, failFirst int64) *fakeRPCServer {
	t.Helper()

	srv := &fakeRPCServer{results: results, failFirst: failFirst}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := srv.calls.Add(1)
		if n <= srv.failFirst {
			http.Error(w, "transient failure", http.StatusInternalServerError)
			return
		}

		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		result, ok := srv.results[req.Method]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}`, req.ID)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"%s"}`, req.ID, result)
	})

	srv.Server = httptest.NewServer(handler)

	t.Cleanup(func() {
		srv.Close()
	})

	return srv
}

// fastRetryConfig keeps test retries quick.
func fastRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     3,
		Delay:        1,
		Timeout:      RPCDefaultRetryTimeout,
		DialAttempts: 2,
		DialDelay:    1,
		DialTimeout:  RPCDefaultDialTimeout,
	}
}
