package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"cosmossdk.io/log"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/handlepay/handlepay-cctp/types"
)

const defaultReceiptInterval = 2 * time.Second

// submission locks keyed by signer and chain id; one pending nonce lookup + send at a time
var submitLocks sync.Map

func submitLock(signer common.Address, chainID int64) *sync.Mutex {
	l, _ := submitLocks.LoadOrStore(fmt.Sprintf("%s/%d", signer.Hex(), chainID), &sync.Mutex{})
	return l.(*sync.Mutex)
}

// Wallet signs with a local key and tracks the chain it is bound to.
// A Wallet belongs to one transfer at a time.
type Wallet struct {
	key             *ecdsa.PrivateKey
	address         common.Address
	pool            *ClientPool
	logger          log.Logger
	receiptInterval time.Duration

	active *types.ChainDescriptor
	client *ethclient.Client
}

func NewWallet(key *ecdsa.PrivateKey, pool *ClientPool, logger log.Logger) *Wallet {
	address := crypto.PubkeyToAddress(key.PublicKey)
	return &Wallet{
		key:             key,
		address:         address,
		pool:            pool,
		logger:          logger.With("signer", address.Hex()),
		receiptInterval: defaultReceiptInterval,
	}
}

// ParsePrivateKey accepts a hex key with or without 0x.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("unable to parse private key: %w", err)
	}
	return key, nil
}

func (w *Wallet) Address() common.Address {
	return w.address
}

func (w *Wallet) ActiveChain() *types.ChainDescriptor {
	return w.active
}

// SwitchChain binds the wallet to chain once the RPC confirms the expected chain id.
func (w *Wallet) SwitchChain(ctx context.Context, chain *types.ChainDescriptor) error {
	client, err := w.pool.Client(ctx, chain)
	if err != nil {
		return err
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		return classifyError("eth_chainId "+chain.Key, err)
	}
	if id.Int64() != chain.ChainID {
		return fmt.Errorf("%w: %s rpc reports chain id %s, expected %d", types.ErrChainMismatch, chain.Key, id, chain.ChainID)
	}
	if w.active == nil || w.active.Key != chain.Key {
		w.logger.Info("Switched network", "chain", chain.Key, "chain_id", chain.ChainID)
	}
	w.active = chain
	w.client = client
	return nil
}

func (w *Wallet) bound() (*ethclient.Client, error) {
	if w.client == nil || w.active == nil {
		return nil, fmt.Errorf("%w: wallet is not bound to a chain", types.ErrChainMismatch)
	}
	return w.client, nil
}

func (w *Wallet) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	client, err := w.bound()
	if err != nil {
		return nil, err
	}
	out, err := client.CallContract(ctx, ethereum.CallMsg{From: w.address, To: &to, Data: data}, nil)
	if err != nil {
		return nil, classifyError("eth_call "+w.active.Key, err)
	}
	return out, nil
}

// Transact estimates, signs and sends a transaction to the active chain.
func (w *Wallet) Transact(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	client, err := w.bound()
	if err != nil {
		return common.Hash{}, err
	}
	chain := w.active

	opts, err := bind.NewKeyedTransactorWithChainID(w.key, big.NewInt(chain.ChainID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to create transactor: %w", err)
	}
	opts.Context = ctx

	lock := submitLock(w.address, chain.ChainID)
	lock.Lock()
	defer lock.Unlock()

	contract := bind.NewBoundContract(to, abi.ABI{}, client, client, client)
	tx, err := contract.RawTransact(opts, data)
	if err != nil {
		return common.Hash{}, classifyError("send "+chain.Key, err)
	}
	w.logger.Debug("Transaction sent", "chain", chain.Key, "to", to.Hex(), "tx", tx.Hash().Hex(), "nonce", tx.Nonce())
	return tx.Hash(), nil
}

// WaitMined blocks until the receipt is available. A failed receipt returns ErrReverted with the receipt.
func (w *Wallet) WaitMined(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	client, err := w.bound()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(w.receiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("tx %s on %s: %w", txHash.Hex(), w.active.Key, types.ErrReverted)
			}
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
		default:
			w.logger.Debug("Receipt not yet retrieved", "tx", txHash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Wallet) BlockNumber(ctx context.Context) (uint64, error) {
	client, err := w.bound()
	if err != nil {
		return 0, err
	}
	n, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, classifyError("eth_blockNumber "+w.active.Key, err)
	}
	return n, nil
}

// WalletFactory hands out one Wallet per transfer, all signing with the same key.
type WalletFactory struct {
	key    *ecdsa.PrivateKey
	pool   *ClientPool
	logger log.Logger
}

func NewWalletFactory(key *ecdsa.PrivateKey, pool *ClientPool, logger log.Logger) *WalletFactory {
	return &WalletFactory{key: key, pool: pool, logger: logger}
}

func (f *WalletFactory) NewWallet() types.Wallet {
	return NewWallet(f.key, f.pool, f.logger)
}
