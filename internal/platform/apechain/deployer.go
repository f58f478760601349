// Package apechain submits approved markets to the prediction market factory
// contract and resolves on-chain market ids from creation transactions.
package apechain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// defaultMarketLifetime is used when a market carries no expiry.
const defaultMarketLifetime = 30 * 24 * time.Hour

// DeployerConfig holds chain connection and wallet parameters.
type DeployerConfig struct {
	RPCURL          string
	ChainID         int64
	ContractAddress string
	PrivateKeyHex   string
	GasLimit        uint64
	ConfirmTimeout  time.Duration
}

// Deployer implements domain.Deployer against the factory contract.
type Deployer struct {
	client   *ethclient.Client
	abi      abi.ABI
	contract common.Address
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	from     common.Address
	cfg      DeployerConfig
	log      *slog.Logger
}

// NewDeployer dials the RPC endpoint and prepares the signing wallet.
func NewDeployer(cfg DeployerConfig, logger *slog.Logger) (*Deployer, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("apechain: dial %s: %w", cfg.RPCURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(predictorABI))
	if err != nil {
		return nil, fmt.Errorf("apechain: parse abi: %w", err)
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("apechain: invalid private key: %w", err)
	}

	if cfg.GasLimit == 0 {
		cfg.GasLimit = 3_000_000
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}

	return &Deployer{
		client:   client,
		abi:      parsed,
		contract: common.HexToAddress(cfg.ContractAddress),
		chainID:  big.NewInt(cfg.ChainID),
		key:      key,
		from:     ethcrypto.PubkeyToAddress(key.PublicKey),
		cfg:      cfg,
		log:      logger.With(slog.String("component", "apechain")),
	}, nil
}

// Close releases the RPC connection.
func (d *Deployer) Close() {
	d.client.Close()
}

// Deploy submits createMarket for m and waits up to the confirmation timeout
// for the on-chain id. Three outcomes are possible: a receipt with both
// MarketID and TxHash (confirmed), TxHash only (submitted, id not yet
// resolvable, resolve later via ResolveMarketID), or an error wrapping
// domain.ErrDeployFailed (submission itself failed, terminal).
func (d *Deployer) Deploy(ctx context.Context, m domain.Market) (domain.DeployReceipt, error) {
	endTime := time.Now().Add(defaultMarketLifetime).Unix()
	if m.Expiry != nil {
		endTime = *m.Expiry
	}

	input, err := d.abi.Pack("createMarket", m.Question, m.Options, big.NewInt(endTime), m.Category)
	if err != nil {
		return domain.DeployReceipt{}, fmt.Errorf("apechain: pack createMarket: %w: %v", domain.ErrDeployFailed, err)
	}

	nonce, err := d.client.PendingNonceAt(ctx, d.from)
	if err != nil {
		return domain.DeployReceipt{}, fmt.Errorf("apechain: nonce: %w: %v", domain.ErrDeployFailed, err)
	}
	gasPrice, err := d.client.SuggestGasPrice(ctx)
	if err != nil {
		return domain.DeployReceipt{}, fmt.Errorf("apechain: gas price: %w: %v", domain.ErrDeployFailed, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &d.contract,
		Gas:      d.cfg.GasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(d.chainID), d.key)
	if err != nil {
		return domain.DeployReceipt{}, fmt.Errorf("apechain: sign tx: %w: %v", domain.ErrDeployFailed, err)
	}

	if err := d.client.SendTransaction(ctx, signed); err != nil {
		return domain.DeployReceipt{}, fmt.Errorf("apechain: send tx: %w: %v", domain.ErrDeployFailed, err)
	}

	txHash := signed.Hash().Hex()
	d.log.Info("createMarket submitted",
		slog.String("market", m.ID),
		slog.String("tx", txHash))

	marketID, err := d.waitForMarketID(ctx, signed.Hash())
	if err != nil {
		if errors.Is(err, domain.ErrDeployFailed) {
			return domain.DeployReceipt{}, fmt.Errorf("apechain: tx %s: %w", txHash, err)
		}
		// Submitted but unresolved: report the tx hash so the tracking
		// step can pick it up later.
		d.log.Warn("market id not yet resolvable",
			slog.String("tx", txHash),
			slog.String("error", err.Error()))
		return domain.DeployReceipt{TxHash: txHash}, nil
	}
	return domain.DeployReceipt{MarketID: marketID, TxHash: txHash}, nil
}

// ResolveMarketID extracts the on-chain market id from a past creation
// transaction. Returns domain.ErrNotFound while the receipt is still
// unavailable and domain.ErrDeployFailed when the transaction reverted.
func (d *Deployer) ResolveMarketID(ctx context.Context, txHash string) (string, error) {
	receipt, err := d.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return "", fmt.Errorf("apechain: receipt for %s: %w", txHash, domain.ErrNotFound)
		}
		return "", fmt.Errorf("apechain: receipt for %s: %w", txHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("apechain: tx %s reverted: %w", txHash, domain.ErrDeployFailed)
	}
	return d.marketIDFromReceipt(receipt)
}

// waitForMarketID polls for the receipt until the confirmation timeout.
func (d *Deployer) waitForMarketID(ctx context.Context, txHash common.Hash) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := d.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return "", fmt.Errorf("tx reverted: %w", domain.ErrDeployFailed)
			}
			return d.marketIDFromReceipt(receipt)
		}
		if !errors.Is(err, ethereum.NotFound) {
			return "", err
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// marketIDFromReceipt finds the MarketCreated event and returns its indexed
// market id.
func (d *Deployer) marketIDFromReceipt(receipt *types.Receipt) (string, error) {
	eventID := d.abi.Events["MarketCreated"].ID
	for _, lg := range receipt.Logs {
		if lg.Address != d.contract || len(lg.Topics) < 2 || lg.Topics[0] != eventID {
			continue
		}
		return new(big.Int).SetBytes(lg.Topics[1].Bytes()).String(), nil
	}
	return "", fmt.Errorf("apechain: no MarketCreated event in tx %s: %w", receipt.TxHash.Hex(), domain.ErrNotFound)
}
