// Package chain はオンチェーンのNFT保有数照会を提供する。
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ContractCaller はeth_callの実行インターフェース。
// *ethclient.Clientを受け付け、テストではモックに差し替える。
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client はERC-721コントラクトのbalanceOf照会を行う。
type Client struct {
	caller   ContractCaller
	contract common.Address
	logger   *slog.Logger
}

// NewClient はClientを生成する。
func NewClient(caller ContractCaller, contractAddress string, logger *slog.Logger) (*Client, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid contract address: %s", contractAddress)
	}
	return &Client{
		caller:   caller,
		contract: common.HexToAddress(contractAddress),
		logger:   logger,
	}, nil
}

// Dial はRPCエンドポイントに接続してClientを生成する。
func Dial(rpcURL, contractAddress string, logger *slog.Logger) (*Client, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rpc endpoint: %w", err)
	}
	return NewClient(ec, contractAddress, logger)
}

// BalanceOf は指定ウォレットのNFT保有数を返す。
// balanceOf(address)のセレクタとアドレスをABIエンコードしてeth_callを実行する。
func (c *Client) BalanceOf(ctx context.Context, wallet string) (int64, error) {
	if !common.IsHexAddress(wallet) {
		return 0, fmt.Errorf("invalid wallet address: %s", wallet)
	}
	addr := common.HexToAddress(wallet)

	// balanceOf(address) = 0x70a08231
	selector := crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	data := append(selector, common.LeftPadBytes(addr.Bytes(), 32)...)

	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &c.contract,
		Data: data,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("eth_call failed: %w", err)
	}

	if len(result) == 0 {
		return 0, fmt.Errorf("empty result from balanceOf (contract missing?)")
	}

	balance := new(big.Int).SetBytes(result)
	if !balance.IsInt64() {
		// NFT保有数としては非現実的な値。オーバーフローを避けて上限に丸める。
		c.logger.Warn("balanceOfが異常に大きい値を返しました",
			slog.String("wallet", wallet),
			slog.String("balance", balance.String()),
		)
		return math.MaxInt64, nil
	}

	return balance.Int64(), nil
}
