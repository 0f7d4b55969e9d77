package circle_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cosmossdk.io/log"

	"github.com/handlepay/handlepay-cctp/circle"
	"github.com/handlepay/handlepay-cctp/types"
)

var testLogger log.Logger

func init() {
	testLogger = log.NewLogger(os.Stdout, log.LevelOption(zerolog.ErrorLevel))
}

func testSettings(url string) types.CircleSettings {
	return types.CircleSettings{
		AttestationBaseURL: url,
		APIVersion:         "v2",
		PollInterval:       5 * time.Millisecond,
		RequestTimeout:     time.Second,
		RequestsPerSecond:  1000,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*circle.Client, types.CircleSettings) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := testSettings(server.URL)
	return circle.NewClient(cfg, testLogger), cfg
}
