package circle_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handlepay/handlepay-cctp/circle"
	"github.com/handlepay/handlepay-cctp/types"
)

const (
	testMessage     = "0x0000000100000006000000000000000000000000000000000000000000000000000000000000002a"
	testAttestation = "aabbccdd"
)

var testBurnHash = common.HexToHash("0x6d0f4c0d2b3f5a0e9b6b8e4f3d8c8e7a3b2c1d0e9f8a7b6c5d4e3f2a1b0c9d8e")

type recorder struct {
	mu      sync.Mutex
	all     []types.AttestationStatus
	changes []types.AttestationStatus
}

func (r *recorder) observe(status types.AttestationStatus, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, status)
	if changed {
		r.changes = append(r.changes, status)
	}
}

// three empty polls, one PENDING, then a signed message
func TestAwaitAttestationWaitingPendingThenReady(t *testing.T) {
	var calls atomic.Int32
	client, cfg := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/messages/6", r.URL.Path)
		assert.Equal(t, testBurnHash.Hex(), r.URL.Query().Get("transactionHash"))

		switch n := calls.Add(1); {
		case n <= 3:
			fmt.Fprint(w, `{"messages":[]}`)
		case n == 4:
			fmt.Fprintf(w, `{"messages":[{"message":%q,"attestation":"PENDING"}]}`, testMessage)
		default:
			fmt.Fprintf(w, `{"messages":[{"message":%q,"attestation":%q,"eventNonce":"0x2a"}]}`, testMessage, testAttestation)
		}
	})

	poller, err := circle.NewPoller(client, cfg, testLogger, nil)
	require.NoError(t, err)

	rec := &recorder{}
	record, err := poller.AwaitAttestation(context.Background(), types.AttestationQuery{SourceDomain: 6, BurnTxHash: testBurnHash}, rec.observe)
	require.NoError(t, err)

	require.Equal(t, []types.AttestationStatus{
		types.AttestationWaiting, types.AttestationWaiting, types.AttestationWaiting,
		types.AttestationPending, types.AttestationReady,
	}, rec.all)
	require.Equal(t, []types.AttestationStatus{
		types.AttestationWaiting, types.AttestationPending, types.AttestationReady,
	}, rec.changes)

	require.Equal(t, common.FromHex(testMessage), record.Message)
	require.Equal(t, common.FromHex("0x"+testAttestation), record.Attestation)
	require.Equal(t, "0x2a", record.Nonce)
	require.False(t, record.ReadyAt.IsZero())
}

func TestAwaitAttestationRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	client, cfg := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch n := calls.Add(1); {
		case n == 1:
			w.WriteHeader(http.StatusNotFound)
		case n <= 3:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			fmt.Fprintf(w, `{"messages":[{"message":%q,"attestation":"0x%s"}]}`, testMessage, testAttestation)
		}
	})

	poller, err := circle.NewPoller(client, cfg, testLogger, nil)
	require.NoError(t, err)

	rec := &recorder{}
	record, err := poller.AwaitAttestation(context.Background(), types.AttestationQuery{SourceDomain: 6, BurnTxHash: testBurnHash}, rec.observe)
	require.NoError(t, err)
	require.NotNil(t, record)
	// 404 is WAITING, 503s are skipped
	require.Equal(t, []types.AttestationStatus{types.AttestationWaiting, types.AttestationReady}, rec.all)
}

func TestAwaitAttestationCancellation(t *testing.T) {
	client, cfg := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"messages":[]}`)
	})
	poller, err := circle.NewPoller(client, cfg, testLogger, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = poller.AwaitAttestation(ctx, types.AttestationQuery{SourceDomain: 6, BurnTxHash: testBurnHash}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitAttestationMaxWait(t *testing.T) {
	client, cfg := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"messages":[{"message":%q,"attestation":"PENDING"}]}`, testMessage)
	})
	cfg.MaxAttestationWait = 30 * time.Millisecond
	poller, err := circle.NewPoller(client, cfg, testLogger, nil)
	require.NoError(t, err)

	_, err = poller.AwaitAttestation(context.Background(), types.AttestationQuery{SourceDomain: 6, BurnTxHash: testBurnHash}, nil)
	require.ErrorIs(t, err, types.ErrTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitAttestationV1(t *testing.T) {
	message := common.FromHex(testMessage)
	lookup := crypto.Keccak256Hash(message).Hex()

	var calls atomic.Int32
	client, cfg := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/attestations/"+lookup, r.URL.Path)
		if calls.Add(1) == 1 {
			fmt.Fprint(w, `{"attestation":"PENDING","status":"pending_confirmations"}`)
			return
		}
		fmt.Fprintf(w, `{"attestation":"0x%s","status":"complete"}`, testAttestation)
	})
	cfg.APIVersion = "v1"
	cfg.AttestationBaseURL += "/attestations/"
	client = circle.NewClient(cfg, testLogger)

	poller, err := circle.NewPoller(client, cfg, testLogger, nil)
	require.NoError(t, err)

	rec := &recorder{}
	record, err := poller.AwaitAttestation(context.Background(), types.AttestationQuery{SourceDomain: 0, BurnTxHash: testBurnHash, Message: message}, rec.observe)
	require.NoError(t, err)
	require.Equal(t, message, record.Message)
	require.Equal(t, []types.AttestationStatus{types.AttestationPending, types.AttestationReady}, rec.all)
}
