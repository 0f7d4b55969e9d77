package handles_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/handlepay/handlepay-cctp/handles"
)

func TestCandidates(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"@Alice", []string{"Alice", "alice", "ALICE"}},
		{"bOB", []string{"bOB", "bob", "BOB", "Bob"}},
		{"carol", []string{"carol", "CAROL", "Carol"}},
		{"  @dave_1 ", []string{"dave_1", "DAVE_1", "Dave_1"}},
		{"@", nil},
		{"", nil},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			require.Equal(t, tc.want, handles.Candidates(tc.input))
		})
	}
}

func TestNormalizePlatform(t *testing.T) {
	require.Equal(t, "twitter", handles.NormalizePlatform("X"))
	require.Equal(t, "twitter", handles.NormalizePlatform(" twitter "))
	require.Equal(t, "telegram", handles.NormalizePlatform("Telegram"))
}

func TestHandleKey(t *testing.T) {
	require.Equal(t, crypto.Keccak256Hash([]byte("twitter:alice")), handles.HandleKey("twitter", "alice"))
}
