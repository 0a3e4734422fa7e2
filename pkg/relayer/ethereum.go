package relayer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// anchorContractABI is the minimal interface the anchoring contract
// exposes: submit a batch root and check a leaf's inclusion against a
// previously submitted one.
const anchorContractABI = `[
	{"type":"function","name":"submitBatch","stateMutability":"nonpayable",
	 "inputs":[{"name":"root","type":"bytes32"},{"name":"count","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"verifyInclusion","stateMutability":"view",
	 "inputs":[{"name":"batchId","type":"uint256"},{"name":"leaf","type":"bytes32"},{"name":"proof","type":"bytes32[]"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

const submitBatchGasLimit = 200_000

// EthereumRelayer anchors batch roots by calling the anchor contract's
// submitBatch method, signing with a local private key.
type EthereumRelayer struct {
	client         *ethclient.Client
	chainID        *big.Int
	contractAddr   common.Address
	privateKey     *ecdsa.PrivateKey
	fromAddress    common.Address
	contractABI    abi.ABI
}

// NewEthereumRelayer dials the given RPC endpoint and prepares a signer
// from the hex-encoded private key.
func NewEthereumRelayer(rpcURL string, chainID int64, contractAddress, privateKeyHex string) (*EthereumRelayer, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("relayer: dial ethereum rpc: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("relayer: parse private key: %w", err)
	}
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("relayer: derive public key from private key")
	}

	parsedABI, err := abi.JSON(strings.NewReader(anchorContractABI))
	if err != nil {
		return nil, fmt.Errorf("relayer: parse anchor contract abi: %w", err)
	}

	return &EthereumRelayer{
		client:       client,
		chainID:      big.NewInt(chainID),
		contractAddr: common.HexToAddress(contractAddress),
		privateKey:   privateKey,
		fromAddress:  crypto.PubkeyToAddress(*publicKeyECDSA),
		contractABI:  parsedABI,
	}, nil
}

// SubmitBatch signs and sends a submitBatch transaction, waiting for it
// to be mined before returning.
func (r *EthereumRelayer) SubmitBatch(ctx context.Context, root [32]byte, count uint64) (string, error) {
	callData, err := r.contractABI.Pack("submitBatch", root, new(big.Int).SetUint64(count))
	if err != nil {
		return "", fmt.Errorf("relayer: pack submitBatch call: %w", err)
	}

	nonce, err := r.client.PendingNonceAt(ctx, r.fromAddress)
	if err != nil {
		return "", fmt.Errorf("relayer: get nonce: %w", err)
	}

	gasPrice, err := r.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("relayer: suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, r.contractAddr, big.NewInt(0), submitBatchGasLimit, gasPrice, callData)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(r.chainID), r.privateKey)
	if err != nil {
		return "", fmt.Errorf("relayer: sign transaction: %w", err)
	}

	if err := r.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("relayer: send transaction: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	receipt, err := waitMined(waitCtx, r.client, signedTx.Hash())
	if err != nil {
		return signedTx.Hash().Hex(), fmt.Errorf("relayer: wait for mining: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return signedTx.Hash().Hex(), fmt.Errorf("relayer: submitBatch transaction reverted")
	}

	return signedTx.Hash().Hex(), nil
}

// VerifyInclusion performs a read-only call against the anchor
// contract's own proof-verification logic.
func (r *EthereumRelayer) VerifyInclusion(ctx context.Context, batchID int64, leaf [32]byte, proof [][32]byte) (bool, error) {
	callData, err := r.contractABI.Pack("verifyInclusion", new(big.Int).SetInt64(batchID), leaf, proof)
	if err != nil {
		return false, fmt.Errorf("relayer: pack verifyInclusion call: %w", err)
	}

	result, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &r.contractAddr, Data: callData}, nil)
	if err != nil {
		return false, fmt.Errorf("relayer: call verifyInclusion: %w", err)
	}

	outputs, err := r.contractABI.Unpack("verifyInclusion", result)
	if err != nil {
		return false, fmt.Errorf("relayer: unpack verifyInclusion result: %w", err)
	}
	if len(outputs) != 1 {
		return false, fmt.Errorf("relayer: unexpected verifyInclusion output count %d", len(outputs))
	}
	ok, _ := outputs[0].(bool)
	return ok, nil
}

// GetBalance returns the relayer account's balance in wei, as a decimal string.
func (r *EthereumRelayer) GetBalance(ctx context.Context) (string, error) {
	balance, err := r.client.BalanceAt(ctx, r.fromAddress, nil)
	if err != nil {
		return "", fmt.Errorf("relayer: get balance: %w", err)
	}
	return balance.String(), nil
}

// Health checks connectivity to the configured RPC endpoint.
func (r *EthereumRelayer) Health(ctx context.Context) error {
	if _, err := r.client.BlockNumber(ctx); err != nil {
		return fmt.Errorf("relayer: ethereum health check failed: %w", err)
	}
	return nil
}

func waitMined(ctx context.Context, client *ethclient.Client, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
