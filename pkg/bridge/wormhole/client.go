// Package wormhole implements the attested token-bridge hop: lock or burn
// on the source chain, wait for the guardian-signed VAA, redeem on the
// destination chain.
package wormhole

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
)

// ErrVAANotFound is returned while guardians have not yet signed a message.
var ErrVAANotFound = errors.New("vaa not yet available")

// Client fetches signed VAAs from a Wormholescan-compatible API.
type Client struct {
	http *resty.Client
}

// NewClient creates an API client rooted at baseURL (e.g. https://api.wormholescan.io/api).
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(30*time.Second).
			SetHeader("Accept", "application/json"),
	}
}

type signedVAAResponse struct {
	VAABytes string `json:"vaaBytes"`
}

// SignedVAA returns the raw VAA for (chain, emitter, sequence).
func (c *Client) SignedVAA(ctx context.Context, chain uint16, emitter common.Address, sequence uint64) ([]byte, error) {
	var body signedVAAResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		ForceContentType("application/json").
		SetPathParams(map[string]string{
			"chain":    fmt.Sprint(chain),
			"emitter":  EmitterHex(emitter),
			"sequence": fmt.Sprint(sequence),
		}).
		Get("/v1/signed_vaa/{chain}/{emitter}/{sequence}")
	if err != nil {
		return nil, fmt.Errorf("wormholescan signed_vaa: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrVAANotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("wormholescan signed_vaa returned HTTP %d", resp.StatusCode())
	}
	if body.VAABytes == "" {
		return nil, ErrVAANotFound
	}

	vaa, err := base64.StdEncoding.DecodeString(body.VAABytes)
	if err != nil {
		return nil, fmt.Errorf("decode vaaBytes: %w", err)
	}
	return vaa, nil
}

// EmitterHex formats an emitter address as the 32-byte, unprefixed hex
// string used in VAA identifiers.
func EmitterHex(emitter common.Address) string {
	return fmt.Sprintf("%064x", emitter.Big())
}
