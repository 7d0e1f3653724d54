// Package fees holds the fixed-point fee arithmetic for escrow transfers.
// All amounts are in the asset's smallest unit.
package fees

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// BasisPointsDenominator is 100% expressed in basis points.
const BasisPointsDenominator = 10_000

var (
	// RelayerFeeScale is 100% in the bridge quote's fixed-point base (1e18).
	RelayerFeeScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// ErrRelayerFeeTooHigh is returned for a relayer fee at or above 100%.
	ErrRelayerFeeTooHigh = errors.New("relayer fee percent must be below 100%")
	// ErrAmountTooSmall is returned when the net amount would not exceed the platform fee.
	ErrAmountTooSmall = errors.New("amount too small to cover platform fee")
	// ErrNegativeAmount is returned for negative inputs.
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// PlatformFee returns floor(amount * rateBps / 10000).
func PlatformFee(amount *big.Int, rateBps uint32) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(int64(rateBps)))
	return fee.Quo(fee, big.NewInt(BasisPointsDenominator))
}

// NetAfterPlatformFee returns amount - PlatformFee(amount).
func NetAfterPlatformFee(amount *big.Int, rateBps uint32) *big.Int {
	return new(big.Int).Sub(amount, PlatformFee(amount, rateBps))
}

// BridgeAdjustedInput inflates amount so that after the relayer deducts
// relayerFeePct (scaled by RelayerFeeScale) the destination still receives amount.
func BridgeAdjustedInput(amount, relayerFeePct *big.Int) (*big.Int, error) {
	if relayerFeePct == nil {
		relayerFeePct = new(big.Int)
	}
	if relayerFeePct.Sign() < 0 {
		return nil, fmt.Errorf("relayer fee percent must not be negative")
	}
	if relayerFeePct.Cmp(RelayerFeeScale) >= 0 {
		return nil, ErrRelayerFeeTooHigh
	}
	denom := new(big.Int).Sub(RelayerFeeScale, relayerFeePct)
	out := new(big.Int).Mul(amount, RelayerFeeScale)
	return out.Quo(out, denom), nil
}

// RelayerFee returns the absolute fee charged on amount at relayerFeePct.
func RelayerFee(amount, relayerFeePct *big.Int) *big.Int {
	if relayerFeePct == nil {
		return new(big.Int)
	}
	fee := new(big.Int).Mul(amount, relayerFeePct)
	return fee.Quo(fee, RelayerFeeScale)
}

// GasBuffer returns estimatedGasUnits * gasPrice.
func GasBuffer(estimatedGasUnits uint64, gasPrice *big.Int) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(estimatedGasUnits), gasPrice)
}

// Quote is the fee breakdown for a transfer request.
type Quote struct {
	Amount          *big.Int
	PlatformFee     *big.Int
	Net             *big.Int
	BridgeInput     *big.Int
	GasBuffer       *big.Int
	ExpectedSend    *big.Int
	ExpectedReceive *big.Int
}

// Compute builds the creation-time breakdown. gasBuffer may be zero for token assets.
func Compute(amount *big.Int, rateBps uint32, relayerFeePct, gasBuffer *big.Int) (*Quote, error) {
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}

	fee := PlatformFee(amount, rateBps)
	net := new(big.Int).Sub(amount, fee)
	if fee.Sign() <= 0 || net.Sign() <= 0 || net.Cmp(fee) <= 0 {
		return nil, ErrAmountTooSmall
	}

	adjusted, err := BridgeAdjustedInput(amount, relayerFeePct)
	if err != nil {
		return nil, err
	}
	if gasBuffer == nil {
		gasBuffer = new(big.Int)
	}

	return &Quote{
		Amount:          new(big.Int).Set(amount),
		PlatformFee:     fee,
		Net:             net,
		BridgeInput:     adjusted,
		GasBuffer:       new(big.Int).Set(gasBuffer),
		ExpectedSend:    new(big.Int).Add(adjusted, gasBuffer),
		ExpectedReceive: net,
	}, nil
}

// ToBaseUnits converts a human amount to the smallest unit, truncating extra precision.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FromBaseUnits converts a smallest-unit amount to a human amount.
func FromBaseUnits(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}
