// Package across implements the Across relayer bridge: quotes from the
// Across REST API, deposits into the origin SpokePool and fill tracking.
package across

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/chainsafe/escrow-bridge/pkg/bridge"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
)

// Deposit status values reported by the API.
const (
	DepositPending  = "pending"
	DepositFilled   = "filled"
	DepositExpired  = "expired"
	DepositRefunded = "refunded"
)

// Client talks to the Across REST API.
type Client struct {
	http *resty.Client
}

// NewClient creates an API client rooted at baseURL (e.g. https://app.across.to/api).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

type feeComponent struct {
	Pct   string `json:"pct"`
	Total string `json:"total"`
}

type suggestedFeesResponse struct {
	TotalRelayFee       feeComponent `json:"totalRelayFee"`
	Timestamp           json.Number  `json:"timestamp"`
	IsAmountTooLow      bool         `json:"isAmountTooLow"`
	SpokePoolAddress    string       `json:"spokePoolAddress"`
	ExclusiveRelayer    string       `json:"exclusiveRelayer"`
	ExclusivityDeadline json.Number  `json:"exclusivityDeadline"`
	FillDeadline        json.Number  `json:"fillDeadline"`
	OutputAmount        json.Number  `json:"outputAmount"`
}

// API error codes the quote flow distinguishes.
const (
	codeAmountTooLow    = "AMOUNT_TOO_LOW"
	codeRouteNotEnabled = "ROUTE_NOT_ENABLED"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// quoteError maps a rejected suggested-fees call to the bridge sentinels.
// Server-side failures stay unclassified so the caller reports a dependency error.
func quoteError(status int, apiErr errorResponse) error {
	switch {
	case apiErr.Code == codeAmountTooLow:
		return fmt.Errorf("%w: %s", bridge.ErrAmountTooLow, apiErr.Message)
	case apiErr.Code == codeRouteNotEnabled:
		return fmt.Errorf("%w: %s", bridge.ErrRouteUnsupported, apiErr.Message)
	case status < http.StatusInternalServerError && apiErr.Message != "":
		return fmt.Errorf("%w: %s", bridge.ErrRouteUnsupported, apiErr.Message)
	default:
		return fmt.Errorf("across suggested-fees returned HTTP %d", status)
	}
}

type depositStatusResponse struct {
	Status    string `json:"status"`
	FillTx    string `json:"fillTx"`
	DepositID string `json:"depositId"`
}

// SuggestedFees requests a quote for amount over route.
func (c *Client) SuggestedFees(ctx context.Context, route bridge.Route, amount *big.Int, recipient common.Address) (*bridge.Quote, error) {
	params := map[string]string{
		"inputToken":         route.InputToken.Hex(),
		"outputToken":        route.OutputToken.Hex(),
		"originChainId":      strconv.FormatInt(route.OriginChainID, 10),
		"destinationChainId": strconv.FormatInt(route.DestinationChainID, 10),
		"amount":             amount.String(),
	}
	if recipient != (common.Address{}) {
		params["recipient"] = recipient.Hex()
	}

	var body suggestedFeesResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&body).
		SetError(&apiErr).
		ForceContentType("application/json").
		Get("/suggested-fees")
	if resp != nil && resp.IsError() {
		return nil, quoteError(resp.StatusCode(), apiErr)
	}
	if err != nil {
		return nil, fmt.Errorf("across suggested-fees: %w", err)
	}

	return body.toQuote(route, amount, recipient)
}

func (r suggestedFeesResponse) toQuote(route bridge.Route, amount *big.Int, recipient common.Address) (*bridge.Quote, error) {
	pct, err := parseInt(r.TotalRelayFee.Pct)
	if err != nil {
		return nil, fmt.Errorf("totalRelayFee.pct: %w", err)
	}
	total, err := parseInt(r.TotalRelayFee.Total)
	if err != nil {
		return nil, fmt.Errorf("totalRelayFee.total: %w", err)
	}

	output := new(big.Int).Sub(amount, total)
	if r.OutputAmount != "" {
		if output, err = parseInt(r.OutputAmount.String()); err != nil {
			return nil, fmt.Errorf("outputAmount: %w", err)
		}
	}

	ts, err := parseUint32(r.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	fillDeadline, err := parseUint32(r.FillDeadline)
	if err != nil {
		return nil, fmt.Errorf("fillDeadline: %w", err)
	}
	exclusivity, err := parseUint32(r.ExclusivityDeadline)
	if err != nil {
		return nil, fmt.Errorf("exclusivityDeadline: %w", err)
	}
	if !common.IsHexAddress(r.SpokePoolAddress) {
		return nil, fmt.Errorf("invalid spokePoolAddress %q", r.SpokePoolAddress)
	}

	return &bridge.Quote{
		Deposit: bridge.Deposit{
			Route:               route,
			Recipient:           recipient,
			InputAmount:         new(big.Int).Set(amount),
			OutputAmount:        output,
			SpokePool:           common.HexToAddress(r.SpokePoolAddress),
			ExclusiveRelayer:    common.HexToAddress(r.ExclusiveRelayer),
			QuoteTimestamp:      ts,
			FillDeadline:        fillDeadline,
			ExclusivityDeadline: exclusivity,
		},
		Fees: bridge.Fees{
			RelayerFeePct:   pct,
			RelayerFeeTotal: total,
		},
		IsAmountTooLow: r.IsAmountTooLow,
	}, nil
}

// DepositStatus reports the fill state of a deposit transaction.
// A 404 is reported as pending: the indexer has not seen the deposit yet.
func (c *Client) DepositStatus(ctx context.Context, originChainID int64, depositTx common.Hash) (status string, fillTx common.Hash, err error) {
	var body depositStatusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"originChainId": strconv.FormatInt(originChainID, 10),
			"depositTxHash": depositTx.Hex(),
		}).
		SetResult(&body).
		ForceContentType("application/json").
		Get("/deposit/status")
	if err != nil {
		return "", common.Hash{}, fmt.Errorf("across deposit/status: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return DepositPending, common.Hash{}, nil
	}
	if resp.IsError() {
		return "", common.Hash{}, fmt.Errorf("across deposit/status returned HTTP %d", resp.StatusCode())
	}
	if body.FillTx != "" {
		fillTx = common.HexToHash(body.FillTx)
	}
	return body.Status, fillTx, nil
}

func parseInt(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}

func parseUint32(n json.Number) (uint32, error) {
	if n == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(n.String(), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
