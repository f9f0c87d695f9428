package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcCall struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     json.RawMessage   `json:"id"`
}

// fakeNode answers JSON-RPC methods from a handler map and records calls.
type fakeNode struct {
	mu       sync.Mutex
	calls    []rpcCall
	handlers map[string]func(params []json.RawMessage) any
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var call rpcCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	h := f.handlers[call.Method]
	f.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": call.ID}
	if h == nil {
		resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
	} else {
		resp["result"] = h(call.Params)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeNode) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func newTestRPC(t *testing.T, node *fakeNode) *RPC {
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	return NewRPC(srv.URL)
}

func sigN(n byte) solana.Signature {
	var s solana.Signature
	s[0] = n
	s[63] = n
	return s
}

func sigEntry(s solana.Signature) map[string]any {
	return map[string]any{
		"signature":          s.String(),
		"slot":               10,
		"err":                nil,
		"memo":               nil,
		"blockTime":          nil,
		"confirmationStatus": "confirmed",
	}
}

func TestFindReference_NotFoundYet(t *testing.T) {
	node := &fakeNode{handlers: map[string]func([]json.RawMessage) any{
		"getSignaturesForAddress": func([]json.RawMessage) any { return []any{} },
	}}
	c := newTestRPC(t, node)

	_, found, err := c.FindReference(context.Background(), solana.NewWallet().PublicKey(), rpc.CommitmentConfirmed)

	require.NoError(t, err)
	assert.False(t, found)
}

func TestFindReference_PagesToOldest(t *testing.T) {
	newest, middle, oldest := sigN(3), sigN(2), sigN(1)
	node := &fakeNode{handlers: map[string]func([]json.RawMessage) any{
		"getSignaturesForAddress": func(params []json.RawMessage) any {
			var opts struct {
				Before string `json:"before"`
			}
			if len(params) > 1 {
				_ = json.Unmarshal(params[1], &opts)
			}
			switch opts.Before {
			case "":
				return []any{sigEntry(newest), sigEntry(middle)}
			case middle.String():
				return []any{sigEntry(oldest)}
			default:
				return []any{}
			}
		},
	}}
	c := newTestRPC(t, node)
	c.pageSize = 2

	sig, found, err := c.FindReference(context.Background(), solana.NewWallet().PublicKey(), rpc.CommitmentConfirmed)

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, oldest, sig)
	assert.Equal(t, 2, node.count("getSignaturesForAddress"))
}

func TestTokenDecimals(t *testing.T) {
	node := &fakeNode{handlers: map[string]func([]json.RawMessage) any{
		"getTokenSupply": func([]json.RawMessage) any {
			return map[string]any{
				"context": map[string]any{"slot": 1},
				"value": map[string]any{
					"amount":         "1000000000",
					"decimals":       6,
					"uiAmount":       1000.0,
					"uiAmountString": "1000",
				},
			}
		},
	}}
	c := newTestRPC(t, node)

	d, err := c.TokenDecimals(context.Background(), solana.NewWallet().PublicKey())

	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)
}

func TestLatestCheckpoint(t *testing.T) {
	hash := solana.HashFromBytes(solana.NewWallet().PublicKey().Bytes())
	node := &fakeNode{handlers: map[string]func([]json.RawMessage) any{
		"getLatestBlockhash": func([]json.RawMessage) any {
			return map[string]any{
				"context": map[string]any{"slot": 1},
				"value":   map[string]any{"blockhash": hash.String(), "lastValidBlockHeight": 4242},
			}
		},
	}}
	c := newTestRPC(t, node)

	cp, err := c.LatestCheckpoint(context.Background())

	require.NoError(t, err)
	assert.Equal(t, hash, cp.Blockhash)
	assert.Equal(t, uint64(4242), cp.LastValidBlockHeight)
}

func TestMergeBalances(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()
	pre := []rpc.TokenBalance{
		{AccountIndex: 1, Mint: mint, Owner: &owner, UiTokenAmount: &rpc.UiTokenAmount{Amount: "1000", Decimals: 6}},
	}
	post := []rpc.TokenBalance{
		{AccountIndex: 1, Mint: mint, Owner: &owner, UiTokenAmount: &rpc.UiTokenAmount{Amount: "400", Decimals: 6}},
		{AccountIndex: 2, Mint: mint, UiTokenAmount: &rpc.UiTokenAmount{Amount: "600", Decimals: 6}},
	}

	got, err := mergeBalances(pre, post)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, TokenBalance{AccountIndex: 1, Mint: mint, Owner: owner, Decimals: 6, Pre: 1000, Post: 400}, got[0])
	assert.Equal(t, TokenBalance{AccountIndex: 2, Mint: mint, Decimals: 6, Pre: 0, Post: 600}, got[1])
}

func TestMergeBalances_BadAmount(t *testing.T) {
	_, err := mergeBalances(nil, []rpc.TokenBalance{{AccountIndex: 0, UiTokenAmount: &rpc.UiTokenAmount{Amount: "1.5"}}})
	assert.Error(t, err)
}

func TestConfirmedTransaction_Lookups(t *testing.T) {
	a, b := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	ct := &ConfirmedTransaction{
		AccountKeys:   []solana.PublicKey{a, b},
		TokenBalances: []TokenBalance{{AccountIndex: 1, Post: 5}},
	}

	assert.Equal(t, 1, ct.IndexOf(b))
	assert.Equal(t, -1, ct.IndexOf(solana.NewWallet().PublicKey()))
	bal, ok := ct.BalanceAt(1)
	assert.True(t, ok)
	assert.Equal(t, uint64(5), bal.Post)
	_, ok = ct.BalanceAt(0)
	assert.False(t, ok)
}
