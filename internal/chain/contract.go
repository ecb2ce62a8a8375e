package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/litebridge/bridge-agent/internal/config"
	"github.com/litebridge/bridge-agent/internal/types"
	log "github.com/sirupsen/logrus"
)

// Backend is the subset of ethclient used by the bridge contract wrapper,
// split out so tests can fake the chain.
type Backend interface {
	bind.DeployBackend
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type BridgeContract struct {
	backend Backend
	address common.Address
	signer  Signer
}

func NewBridgeContract(signer Signer) (*BridgeContract, error) {
	if config.AppConfig.BridgeContract == "" {
		return nil, errors.New("bridge contract address not configured")
	}
	client, err := ethclient.Dial(config.AppConfig.L1RPC)
	if err != nil {
		return nil, err
	}
	return &BridgeContract{
		backend: client,
		address: common.HexToAddress(config.AppConfig.BridgeContract),
		signer:  signer,
	}, nil
}

// NewBridgeContractWithBackend is the test entry point.
func NewBridgeContractWithBackend(backend Backend, address common.Address, signer Signer) *BridgeContract {
	return &BridgeContract{backend: backend, address: address, signer: signer}
}

// Deposit moves value from L1 into the bridge. The amount rides both as call
// data and as tx value, the contract checks they agree.
func (c *BridgeContract) Deposit(ctx context.Context, amount *big.Int) (string, error) {
	input, err := bridgeABI.Pack("deposit", amount)
	if err != nil {
		return "", err
	}
	tx, err := c.sendTx(ctx, input, amount, config.AppConfig.DepositGasLimit)
	if err != nil {
		return "", err
	}
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return tx.Hash().Hex(), err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return tx.Hash().Hex(), errors.New("deposit transaction reverted")
	}
	log.Infof("Deposit confirmed, tx %s, amount %s", tx.Hash().Hex(), amount.String())
	return tx.Hash().Hex(), nil
}

// Claim submits the Merkle-proof-gated withdrawal. A revert is classified so
// the orchestrator can decide between resume, top-up and manual recovery.
func (c *BridgeContract) Claim(ctx context.Context, amount *big.Int, nonce, batchId uint64, proof []byte) (string, error) {
	processed, err := c.IsProcessed(ctx, c.signer.Address(), nonce)
	if err == nil && processed {
		return "", types.ErrAlreadyProcessed
	}

	input, err := bridgeABI.Pack("withdraw", amount, new(big.Int).SetUint64(nonce), new(big.Int).SetUint64(batchId), proof)
	if err != nil {
		return "", err
	}
	tx, err := c.sendTx(ctx, input, nil, config.AppConfig.ClaimGasLimit)
	if err != nil {
		return "", &types.ClaimRevertedError{Kind: ClassifyRevert(err), Err: err}
	}
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return tx.Hash().Hex(), &types.ClaimRevertedError{Kind: types.RevertUnknown, Err: err}
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		// receipts carry no revert reason, re-check processed state to keep
		// the idempotency rule before declaring failure
		if done, perr := c.IsProcessed(ctx, c.signer.Address(), nonce); perr == nil && done {
			return tx.Hash().Hex(), types.ErrAlreadyProcessed
		}
		return tx.Hash().Hex(), &types.ClaimRevertedError{Kind: types.RevertUnknown, Err: errors.New("claim transaction reverted")}
	}
	log.Infof("Claim confirmed, tx %s, nonce %d, batch %d", tx.Hash().Hex(), nonce, batchId)
	return tx.Hash().Hex(), nil
}

// ForceWithdraw is the anti-censorship escape hatch for the account itself.
func (c *BridgeContract) ForceWithdraw(ctx context.Context, amount *big.Int, nonce uint64) (string, error) {
	input, err := bridgeABI.Pack("forceWithdraw", amount, new(big.Int).SetUint64(nonce))
	if err != nil {
		return "", err
	}
	tx, err := c.sendTx(ctx, input, nil, config.AppConfig.ClaimGasLimit)
	if err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// CensorshipProof challenges the operator on behalf of any account.
func (c *BridgeContract) CensorshipProof(ctx context.Context, account common.Address, amount *big.Int, nonce uint64) (string, error) {
	input, err := bridgeABI.Pack("censorshipProof", account, amount, new(big.Int).SetUint64(nonce))
	if err != nil {
		return "", err
	}
	tx, err := c.sendTx(ctx, input, nil, config.AppConfig.ClaimGasLimit)
	if err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

func (c *BridgeContract) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := c.call(ctx, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	results, err := bridgeABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, err
	}
	return results[0].(*big.Int), nil
}

func (c *BridgeContract) IsProcessed(ctx context.Context, account common.Address, nonce uint64) (bool, error) {
	out, err := c.call(ctx, "isProcessed", account, new(big.Int).SetUint64(nonce))
	if err != nil {
		return false, err
	}
	results, err := bridgeABI.Unpack("isProcessed", out)
	if err != nil {
		return false, err
	}
	return results[0].(bool), nil
}

func (c *BridgeContract) call(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	input, err := bridgeABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	return c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: input}, nil)
}

func (c *BridgeContract) sendTx(ctx context.Context, input []byte, value *big.Int, gasLimit uint64) (*ethtypes.Transaction, error) {
	from := c.signer.Address()
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, err
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &c.address,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})
	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return nil, err
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	return signed, nil
}

// ClassifyRevert maps a chain-side failure to the recovery guidance classes.
func ClassifyRevert(err error) types.RevertKind {
	if err == nil {
		return types.RevertUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user denied") || strings.Contains(msg, "user rejected"):
		return types.RevertUserRejected
	case strings.Contains(msg, "insufficient funds"):
		return types.RevertInsufficientFunds
	case strings.Contains(msg, "invalid proof") || strings.Contains(msg, "bad proof"):
		return types.RevertInvalidProof
	case strings.Contains(msg, "already processed") || strings.Contains(msg, "already claimed"):
		return types.RevertAlreadyProcessed
	default:
		return types.RevertUnknown
	}
}
