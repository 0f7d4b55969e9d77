package handles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"

	"github.com/handlepay/handlepay-cctp/types"
)

const resolveHandleQuery = `query ResolveHandle($platform: String!, $usernames: [String!]) {
  handleAddeds(first: 1, where: { platform: $platform, username_in: $usernames }, orderBy: blockTimestamp, orderDirection: desc) {
    memberId
    username
  }
}`

const memberWalletQuery = `query MemberWallet($memberId: BigInt!) {
  memberCreateds(where: { memberId: $memberId }) {
    wallet
  }
}`

type graphRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphError struct {
	Message string `json:"message"`
}

type graphResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphError    `json:"errors"`
}

type handleAddedsResult struct {
	HandleAddeds []struct {
		MemberID string `json:"memberId"`
		Username string `json:"username"`
	} `json:"handleAddeds"`
}

type memberCreatedsResult struct {
	MemberCreateds []struct {
		Wallet string `json:"wallet"`
	} `json:"memberCreateds"`
}

// SubgraphResolver resolves handles through the registry subgraph.
type SubgraphResolver struct {
	url        string
	httpClient *http.Client
	members    *RegistryResolver // optional isActive check
	logger     log.Logger
}

var _ types.HandleResolver = (*SubgraphResolver)(nil)

func NewSubgraphResolver(url string, timeout time.Duration, members *RegistryResolver, logger log.Logger) *SubgraphResolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SubgraphResolver{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		members:    members,
		logger:     logger.With("strategy", "subgraph"),
	}
}

func (s *SubgraphResolver) Name() string {
	return "subgraph"
}

func (s *SubgraphResolver) Resolve(ctx context.Context, platform, username string) (*types.HandleBinding, error) {
	platform = NormalizePlatform(platform)
	candidates := Candidates(username)
	if platform == "" || len(candidates) == 0 {
		return nil, fmt.Errorf("%w: empty handle", types.ErrHandleNotFound)
	}

	var handles handleAddedsResult
	if err := s.query(ctx, resolveHandleQuery, map[string]interface{}{
		"platform":  platform,
		"usernames": candidates,
	}, &handles); err != nil {
		return nil, err
	}
	if len(handles.HandleAddeds) == 0 || handles.HandleAddeds[0].MemberID == "" {
		return nil, fmt.Errorf("%w: %s:%s", types.ErrHandleNotFound, platform, username)
	}
	entry := handles.HandleAddeds[0]

	memberID, ok := new(big.Int).SetString(entry.MemberID, 10)
	if !ok {
		return nil, fmt.Errorf("%w: subgraph returned member id %q", types.ErrRPC, entry.MemberID)
	}

	var members memberCreatedsResult
	if err := s.query(ctx, memberWalletQuery, map[string]interface{}{"memberId": entry.MemberID}, &members); err != nil {
		return nil, err
	}
	if len(members.MemberCreateds) == 0 || !common.IsHexAddress(members.MemberCreateds[0].Wallet) {
		return nil, fmt.Errorf("%w: member %s wallet not found", types.ErrHandleNotFound, entry.MemberID)
	}

	wallet := common.HexToAddress(members.MemberCreateds[0].Wallet)

	// the subgraph only indexes additions; deactivation lives in contract state
	if s.members != nil {
		member, err := s.members.Member(ctx, memberID)
		if err != nil {
			return nil, err
		}
		if !member.IsActive {
			return nil, fmt.Errorf("%w: %s:%s (member %s)", types.ErrMemberInactive, platform, entry.Username, memberID)
		}
	}
	s.logger.Debug("Resolved handle", "platform", platform, "input", username, "username", entry.Username, "wallet", wallet.Hex())
	return &types.HandleBinding{Platform: platform, Username: entry.Username, Wallet: wallet, MemberID: memberID}, nil
}

func (s *SubgraphResolver) query(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(graphRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("unable to encode graphql request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("unable to create graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: subgraph request: %v", types.ErrRPC, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: subgraph read: %v", types.ErrRPC, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: subgraph status %d: %s", types.ErrRPC, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var gr graphResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return fmt.Errorf("%w: subgraph response: %v", types.ErrRPC, err)
	}
	if len(gr.Errors) > 0 {
		return fmt.Errorf("%w: subgraph error: %s", types.ErrRPC, gr.Errors[0].Message)
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("%w: subgraph data: %v", types.ErrRPC, err)
	}
	return nil
}
