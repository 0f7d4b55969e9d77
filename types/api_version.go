package types

import (
	"fmt"
	"strings"
)

// APIVersion selects the CCTP protocol generation: Iris endpoints and the bridge contract ABIs.
type APIVersion int

const (
	APIVersionV1 APIVersion = iota + 1 // depositForBurn(4 args), /attestations/{keccak(message)}
	APIVersionV2                       // depositForBurn(7 args), /v2/messages/{sourceDomain}?transactionHash=
)

func (v APIVersion) String() string {
	switch v {
	case APIVersionV1:
		return "v1"
	default:
		return "v2"
	}
}

// ParseAPIVersion parses a config value. Empty defaults to v2, the generation fees and hooks exist on.
func ParseAPIVersion(s string) (APIVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1", "1":
		return APIVersionV1, nil
	case "v2", "2", "":
		return APIVersionV2, nil
	default:
		return 0, fmt.Errorf("invalid API version %q: must be 'v1' or 'v2'", s)
	}
}
