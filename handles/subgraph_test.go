package handles_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handlepay/handlepay-cctp/handles"
	"github.com/handlepay/handlepay-cctp/types"
)

type graphBody struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

func newSubgraph(t *testing.T, handler func(body graphBody) string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body graphBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, handler(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSubgraphResolver(t *testing.T) {
	server := newSubgraph(t, func(body graphBody) string {
		if _, ok := body.Variables["memberId"]; ok {
			assert.Equal(t, "7", body.Variables["memberId"])
			return fmt.Sprintf(`{"data":{"memberCreateds":[{"wallet":%q}]}}`, aliceWallet.Hex())
		}
		assert.Equal(t, "twitter", body.Variables["platform"])
		assert.ElementsMatch(t, []interface{}{"Alice", "alice", "ALICE"}, body.Variables["usernames"])
		return `{"data":{"handleAddeds":[{"memberId":"7","username":"alice"}]}}`
	})

	r := handles.NewSubgraphResolver(server.URL, 0, nil, log.NewNopLogger())
	binding, err := r.Resolve(context.Background(), "x", "@Alice")
	require.NoError(t, err)
	require.Equal(t, aliceWallet, binding.Wallet)
	require.Equal(t, "alice", binding.Username)
	require.Equal(t, int64(7), binding.MemberID.Int64())
}

func TestSubgraphResolverErrors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		status   int
		expected error
	}{
		{"no handle", `{"data":{"handleAddeds":[]}}`, http.StatusOK, types.ErrHandleNotFound},
		{"graphql error", `{"errors":[{"message":"bad query"}]}`, http.StatusOK, types.ErrRPC},
		{"server error", `oops`, http.StatusBadGateway, types.ErrRPC},
		{"malformed", `{"data":`, http.StatusOK, types.ErrRPC},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.response)
			}))
			defer server.Close()

			_, err := handles.NewSubgraphResolver(server.URL, 0, nil, log.NewNopLogger()).Resolve(context.Background(), "twitter", "alice")
			require.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestSubgraphResolverMissingWallet(t *testing.T) {
	server := newSubgraph(t, func(body graphBody) string {
		if _, ok := body.Variables["memberId"]; ok {
			return `{"data":{"memberCreateds":[]}}`
		}
		return `{"data":{"handleAddeds":[{"memberId":"7","username":"alice"}]}}`
	})
	_, err := handles.NewSubgraphResolver(server.URL, 0, nil, log.NewNopLogger()).Resolve(context.Background(), "twitter", "alice")
	require.ErrorIs(t, err, types.ErrHandleNotFound)
}

func TestSubgraphResolverInactiveMember(t *testing.T) {
	server := newSubgraph(t, func(body graphBody) string {
		if id, ok := body.Variables["memberId"]; ok {
			return fmt.Sprintf(`{"data":{"memberCreateds":[{"wallet":%q}]}}`, map[interface{}]string{
				"7": aliceWallet.Hex(),
				"8": "0x0000000000000000000000000000000000000bad",
			}[id])
		}
		if body.Variables["usernames"].([]interface{})[0] == "ghost" {
			return `{"data":{"handleAddeds":[{"memberId":"8","username":"ghost"}]}}`
		}
		return `{"data":{"handleAddeds":[{"memberId":"7","username":"alice"}]}}`
	})
	registry := newFakeRegistry()
	members := handles.NewRegistryResolver(registryAddress, registry, log.NewNopLogger())
	r := handles.NewSubgraphResolver(server.URL, 0, members, log.NewNopLogger())

	binding, err := r.Resolve(context.Background(), "twitter", "alice")
	require.NoError(t, err)
	require.Equal(t, aliceWallet, binding.Wallet)

	_, err = r.Resolve(context.Background(), "twitter", "ghost")
	require.ErrorIs(t, err, types.ErrMemberInactive)
	require.Equal(t, 2, registry.calls)
}
