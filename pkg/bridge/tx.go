package bridge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/chainsafe/escrow-bridge/pkg/ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SendAndWait submits req through gw and blocks for one confirmation,
// reporting step progress on the way.
func SendAndWait(ctx context.Context, hop HopRequest, gw ethereum.Gateway, signer ethereum.Signer,
	step Step, req ethereum.TxRequest) (common.Hash, *types.Receipt, error) {
	hash, err := gw.Send(ctx, signer, req)
	if err != nil {
		hop.Report(step, StatusTxError, common.Hash{}, err)
		return common.Hash{}, nil, fmt.Errorf("%s: send: %w", step, err)
	}
	hop.Report(step, StatusTxPending, hash, nil)

	receipt, err := gw.WaitMined(ctx, hash)
	if err != nil {
		hop.Report(step, StatusTxError, hash, err)
		return hash, receipt, fmt.Errorf("%s: %w", step, err)
	}
	hop.Report(step, StatusTxSuccess, hash, nil)
	return hash, receipt, nil
}

// Approve grants spender an allowance of amount on token, signed by the hop signer.
func Approve(ctx context.Context, hop HopRequest, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := ethereum.PackApprove(spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack approve: %w", err)
	}
	hash, _, err := SendAndWait(ctx, hop, hop.Origin, hop.Signer, StepApprove, ethereum.TxRequest{To: token, Data: data})
	return hash, err
}
