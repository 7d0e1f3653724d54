package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"
)

const (
	explorerPageSize       = 50
	explorerNoTransactions = "No transactions found"
)

// ExplorerClient reads account history from an Etherscan-compatible API.
type ExplorerClient struct {
	http    *resty.Client
	apiKey  string
	chainID int64
}

// NewExplorerClient creates a client for baseURL (the API root, e.g. https://api.etherscan.io/v2/api).
func NewExplorerClient(baseURL, apiKey string, chainID int64) *ExplorerClient {
	return &ExplorerClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(15*time.Second).
			SetRetryCount(2).
			SetHeader("Accept", "application/json"),
		apiKey:  apiKey,
		chainID: chainID,
	}
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type explorerTx struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	Input           string `json:"input"`
	TimeStamp       string `json:"timeStamp"`
	BlockNumber     string `json:"blockNumber"`
	IsError         string `json:"isError"`
	ReceiptStatus   string `json:"txreceipt_status"`
	ContractAddress string `json:"contractAddress"`
	TokenDecimal    string `json:"tokenDecimal"`
}

// Transactions returns the newest transfers involving address. "No
// transactions found" yields an empty list; any other non-"1" status, or a
// body without a status, is an error so the caller retries.
func (e *ExplorerClient) Transactions(ctx context.Context, address common.Address, kind TransferKind) ([]Transaction, error) {
	action := "txlist"
	if kind == KindToken {
		action = "tokentx"
	}

	params := map[string]string{
		"module":  "account",
		"action":  action,
		"address": address.Hex(),
		"sort":    "desc",
		"page":    "1",
		"offset":  strconv.Itoa(explorerPageSize),
		"chainid": strconv.FormatInt(e.chainID, 10),
	}
	if e.apiKey != "" {
		params["apikey"] = e.apiKey
	}

	var body explorerResponse
	resp, err := e.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&body).
		ForceContentType("application/json").
		Get("")
	if err != nil {
		return nil, fmt.Errorf("explorer %s request failed: %w", action, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("explorer %s returned HTTP %d", action, resp.StatusCode())
	}
	switch {
	case body.Status == "1":
	case body.Status == "0" && strings.HasPrefix(body.Message, explorerNoTransactions):
		return nil, nil
	case body.Status == "":
		return nil, fmt.Errorf("explorer %s returned an undecodable body", action)
	default:
		return nil, fmt.Errorf("explorer %s: %s: %s", action, body.Message, truncateRaw(body.Result))
	}

	var raw []explorerTx
	if err := json.Unmarshal(body.Result, &raw); err != nil {
		return nil, fmt.Errorf("decode explorer %s result: %w", action, err)
	}

	out := make([]Transaction, 0, len(raw))
	for _, r := range raw {
		tx, err := r.normalize(kind)
		if err != nil {
			return nil, fmt.Errorf("explorer %s entry %s: %w", action, r.Hash, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func (r explorerTx) normalize(kind TransferKind) (Transaction, error) {
	value, err := ParseBigInt(r.Value)
	if err != nil {
		return Transaction{}, err
	}
	ts, err := strconv.ParseInt(r.TimeStamp, 10, 64)
	if err != nil {
		return Transaction{}, fmt.Errorf("invalid timeStamp %q", r.TimeStamp)
	}
	block, _ := strconv.ParseUint(r.BlockNumber, 10, 64)

	tx := Transaction{
		Hash:          common.HexToHash(r.Hash),
		From:          common.HexToAddress(r.From),
		To:            common.HexToAddress(r.To),
		Kind:          kind,
		TokenDecimals: -1,
		Timestamp:     time.Unix(ts, 0).UTC(),
		BlockNumber:   block,
		Failed:        r.IsError == "1" || r.ReceiptStatus == "0",
	}
	if r.Input != "" && r.Input != "0x" && r.Input != "deprecated" {
		tx.Input, _ = hexutil.Decode(r.Input)
	}

	if kind == KindToken {
		token := common.HexToAddress(r.ContractAddress)
		tx.Token = &token
		tx.TokenAmount = value
		tx.Value = new(big.Int)
		if d, err := strconv.Atoi(r.TokenDecimal); err == nil {
			tx.TokenDecimals = d
		}
		return tx, nil
	}
	tx.Value = value
	return tx, nil
}

func truncateRaw(raw json.RawMessage) string {
	const limit = 128
	if len(raw) > limit {
		return strings.ToValidUTF8(string(raw[:limit]), "") + "..."
	}
	return string(raw)
}
