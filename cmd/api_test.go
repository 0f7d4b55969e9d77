package cmd_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/handlepay/handlepay-cctp/cmd"
	"github.com/handlepay/handlepay-cctp/store"
	testutil "github.com/handlepay/handlepay-cctp/test_util"
	"github.com/handlepay/handlepay-cctp/types"
)

type staticHandles map[string]common.Address

func (h staticHandles) Resolve(_ context.Context, platform, username string) (*types.HandleBinding, error) {
	if platform == "" || username == "" {
		return nil, fmt.Errorf("%w: platform and username are required", types.ErrInvalidRequest)
	}
	wallet, ok := h[platform+":"+strings.TrimPrefix(strings.ToLower(username), "@")]
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", types.ErrHandleNotFound, platform, username)
	}
	return &types.HandleBinding{Platform: platform, Username: username, Wallet: wallet, MemberID: big.NewInt(7)}, nil
}

type fixedFees struct {
	bps math.LegacyDec
	err error
}

func (f fixedFees) MinimumFeeBps(context.Context, types.Domain, types.Domain, types.Finality) (math.LegacyDec, error) {
	return f.bps, f.err
}

func (f fixedFees) EstimateMaxFeeForFinality(_ context.Context, _, _ types.Domain, amount uint64, _ types.Finality) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.bps.MulInt64(int64(amount)).QuoInt64(10_000).Ceil().TruncateInt().Uint64(), nil
}

type apiHarness struct {
	dispatcher  *fakeDispatcher
	checkpoints *store.MemoryStore
	jobs        *cmd.JobStore
	queue       chan *cmd.Job
	fees        *fixedFees
	server      *httptest.Server
}

func newAPIHarness(t *testing.T, queueSize int) *apiHarness {
	t.Helper()
	a, registry := testutil.ConfigSetup(t)
	h := &apiHarness{
		dispatcher:  newFakeDispatcher(registry),
		checkpoints: store.NewMemoryStore(),
		jobs:        cmd.NewJobStore(),
		queue:       make(chan *cmd.Job, queueSize),
		fees:        &fixedFees{bps: math.LegacyNewDec(1)},
	}
	api := cmd.NewAPI(h.dispatcher, staticHandles{"twitter:alice": recipient}, h.fees, h.checkpoints, h.jobs, h.queue, a.Logger)
	h.server = httptest.NewServer(api.Engine())
	t.Cleanup(h.server.Close)
	return h
}

func (h *apiHarness) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestAPIPostTransferByHandle(t *testing.T) {
	h := newAPIHarness(t, 1)

	code, body := h.do(t, http.MethodPost, "/transfers", `{"from":"base","to":"ethereum","amount":"2.5","handle":"twitter:@Alice","finality":"fast"}`)
	require.Equal(t, http.StatusAccepted, code, body)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	require.Len(t, h.queue, 1)
	job := <-h.queue
	require.Equal(t, id, job.ID)
	require.Equal(t, recipient, job.Order.Recipient)
	require.Equal(t, uint64(2_500_000), job.Order.Amount)
	require.Equal(t, types.FinalityFast, job.Order.Finality)
	require.Equal(t, types.ModeDirect, job.Order.Mode)

	code, body = h.do(t, http.MethodGet, "/transfers/"+id, "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, id, body["id"])
	require.Equal(t, false, body["finished"])
}

func TestAPIPostTransferErrors(t *testing.T) {
	h := newAPIHarness(t, 1)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"missing amount", `{"from":"base","to":"ethereum","recipient":"0x742d35cc6634c0532925a3b844bc9e7595f0beb0"}`, http.StatusBadRequest},
		{"bad recipient", `{"from":"base","to":"ethereum","amount":"1","recipient":"0x1234"}`, http.StatusBadRequest},
		{"unknown chain", `{"from":"solana","to":"ethereum","amount":"1","recipient":"0x742d35cc6634c0532925a3b844bc9e7595f0beb0"}`, http.StatusBadRequest},
		{"unknown handle", `{"from":"base","to":"ethereum","amount":"1","handle":"twitter:bob"}`, http.StatusNotFound},
		{"no recipient", `{"from":"base","to":"ethereum","amount":"1"}`, http.StatusBadRequest},
		{"too many decimals", `{"from":"base","to":"ethereum","amount":"0.0000001","handle":"twitter:alice"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := h.do(t, http.MethodPost, "/transfers", tc.body)
			require.Equal(t, tc.code, code, body)
			require.NotEmpty(t, body["message"])
		})
	}
	require.Empty(t, h.queue)
}

func TestAPIQueueFull(t *testing.T) {
	h := newAPIHarness(t, 1)
	transfer := `{"from":"base","to":"ethereum","amount":"1","recipient":"0x742d35cc6634c0532925a3b844bc9e7595f0beb0"}`

	code, _ := h.do(t, http.MethodPost, "/transfers", transfer)
	require.Equal(t, http.StatusAccepted, code)
	code, _ = h.do(t, http.MethodPost, "/transfers", transfer)
	require.Equal(t, http.StatusServiceUnavailable, code)
}

func TestAPIResumeFromCheckpoint(t *testing.T) {
	h := newAPIHarness(t, 2)
	require.NoError(t, h.checkpoints.Save(context.Background(), &types.Checkpoint{
		SourceChain:      "base",
		DestinationChain: "ethereum",
		Recipient:        recipient,
		Amount:           5_000_000,
		BurnTxHash:       burnHash,
		Mode:             types.ModeDirect,
		Finality:         types.FinalityStandard,
		CreatedAt:        time.Now(),
	}))

	code, body := h.do(t, http.MethodPost, "/transfers/resume", fmt.Sprintf(`{"burnTxHash":%q}`, burnHash.Hex()))
	require.Equal(t, http.StatusAccepted, code, body)
	job := <-h.queue
	require.Equal(t, burnHash, job.BurnTxHash)
	require.Equal(t, uint64(5_000_000), job.Order.Amount)

	// a queued burn is not queued twice
	code, _ = h.do(t, http.MethodPost, "/transfers/resume", fmt.Sprintf(`{"burnTxHash":%q}`, burnHash.Hex()))
	require.Equal(t, http.StatusConflict, code)

	// status is reachable by burn hash
	code, body = h.do(t, http.MethodGet, "/transfers/"+burnHash.Hex(), "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, job.ID, body["id"])
}

func TestAPIResumeWithoutCheckpoint(t *testing.T) {
	h := newAPIHarness(t, 1)
	other := common.HexToHash("0x0c0c").Hex()

	code, _ := h.do(t, http.MethodPost, "/transfers/resume", fmt.Sprintf(`{"burnTxHash":%q}`, other))
	require.Equal(t, http.StatusBadRequest, code)

	code, body := h.do(t, http.MethodPost, "/transfers/resume", fmt.Sprintf(
		`{"burnTxHash":%q,"from":"ethereum","to":"base","amount":"3","recipient":"0x742d35cc6634c0532925a3b844bc9e7595f0beb0"}`, other))
	require.Equal(t, http.StatusAccepted, code, body)

	code, _ = h.do(t, http.MethodPost, "/transfers/resume", `{"burnTxHash":"0x1234"}`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestAPIGetTransferNotFound(t *testing.T) {
	h := newAPIHarness(t, 1)
	code, body := h.do(t, http.MethodGet, "/transfers/nope", "")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "transfer not found", body["message"])
}

func TestAPIGetHandle(t *testing.T) {
	h := newAPIHarness(t, 1)

	code, body := h.do(t, http.MethodGet, "/handles/twitter/ALICE", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, recipient.Hex(), body["wallet"])

	code, body = h.do(t, http.MethodGet, "/handles/twitter/bob", "")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "HandleNotFound", body["tag"])
}

func TestAPIGetFee(t *testing.T) {
	h := newAPIHarness(t, 1)

	code, body := h.do(t, http.MethodGet, "/fees/base/ethereum?amount=100&finality=fast", "")
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "FAST", body["finality"])
	require.Equal(t, "0.010000", body["maxFee"])
	require.Equal(t, "100.000000", body["amount"])

	code, _ = h.do(t, http.MethodGet, "/fees/base/solana", "")
	require.Equal(t, http.StatusBadRequest, code)

	h.fees.err = fmt.Errorf("%w: status 503", types.ErrFeeServiceUnavailable)
	code, body = h.do(t, http.MethodGet, "/fees/base/ethereum", "")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "FeeServiceUnavailable", body["tag"])
}
