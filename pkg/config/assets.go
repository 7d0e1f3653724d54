package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedAsset is returned when a ticker is not present in the catalog.
var ErrUnsupportedAsset = errors.New("unsupported asset")

// Bridge protocol identifiers used by the asset catalog.
const (
	BridgeAcross   = "across"
	BridgeWormhole = "wormhole"
)

// AssetCatalog is the set of assets the service can move, keyed by upper-case ticker.
type AssetCatalog struct {
	assets map[string]*Asset
}

type assetFile struct {
	Assets []*Asset `yaml:"assets" validate:"required,min=1,dive"`
}

// Asset describes a transferable asset and its per-network routes.
type Asset struct {
	Symbol        string `yaml:"symbol" validate:"required,alphanum,max=16"`
	// Decimals is capped at the ledger's numeric scale of 18.
	Decimals      int32  `yaml:"decimals" default:"18" validate:"min=0,max=18"`
	Native        bool   `yaml:"native"`
	MinimumAmount string `yaml:"minimum_amount" validate:"required,numeric"`
	GasUnits      uint64 `yaml:"gas_units" default:"250000" validate:"gt=0"`
	FeeRateBps    uint32 `yaml:"fee_rate_bps" validate:"max=9999"`
	Bridge        string `yaml:"bridge" default:"across" validate:"oneof=across wormhole"`
	Mainnet       Route  `yaml:"mainnet"`
	Testnet       Route  `yaml:"testnet"`
}

// Route pins the chains and token contracts an asset moves through on one network class.
type Route struct {
	Origin      string `yaml:"origin" validate:"required"`
	Destination string `yaml:"destination" validate:"required"`
	// Token is the deposit token on the origin chain; empty for native assets.
	Token string `yaml:"token" validate:"omitempty,eth_addr"`
	// InputToken is what the bridge pulls on the origin chain (wrapped native for native assets).
	InputToken string `yaml:"input_token" validate:"omitempty,eth_addr"`
	// OutputToken is what lands on the destination chain.
	OutputToken string `yaml:"output_token" validate:"omitempty,eth_addr"`
	// PayoutToken is the token paid to the recipient; empty for native payouts.
	PayoutToken string `yaml:"payout_token" validate:"omitempty,eth_addr"`
}

// LoadAssets reads and validates the asset catalog file.
func LoadAssets(path string) (*AssetCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read assets file: %w", err)
	}
	return ParseAssets(raw)
}

// ParseAssets parses catalog YAML, applies defaults and validates every entry.
func ParseAssets(raw []byte) (*AssetCatalog, error) {
	var file assetFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse assets: %w", err)
	}

	for _, a := range file.Assets {
		if err := defaults.Set(a); err != nil {
			return nil, fmt.Errorf("failed to apply asset defaults: %w", err)
		}
	}

	if err := validator.New().Struct(&file); err != nil {
		return nil, fmt.Errorf("invalid assets file: %w", err)
	}

	catalog := &AssetCatalog{assets: make(map[string]*Asset, len(file.Assets))}
	for _, a := range file.Assets {
		a.Symbol = strings.ToUpper(a.Symbol)
		if _, dup := catalog.assets[a.Symbol]; dup {
			return nil, fmt.Errorf("duplicate asset %s", a.Symbol)
		}
		if !a.Native && (a.Mainnet.Token == "" || a.Testnet.Token == "") {
			return nil, fmt.Errorf("asset %s: token address required for non-native assets", a.Symbol)
		}
		if _, err := a.Minimum(); err != nil {
			return nil, fmt.Errorf("asset %s: %w", a.Symbol, err)
		}
		catalog.assets[a.Symbol] = a
	}
	return catalog, nil
}

// Lookup returns the asset for ticker, case-insensitively.
func (c *AssetCatalog) Lookup(ticker string) (*Asset, error) {
	a, ok := c.assets[strings.ToUpper(ticker)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAsset, ticker)
	}
	return a, nil
}

// Symbols lists configured tickers.
func (c *AssetCatalog) Symbols() []string {
	out := make([]string, 0, len(c.assets))
	for s := range c.assets {
		out = append(out, s)
	}
	return out
}

// Minimum returns the minimum deposit in human units.
func (a *Asset) Minimum() (decimal.Decimal, error) {
	m, err := decimal.NewFromString(a.MinimumAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid minimum_amount %q: %w", a.MinimumAmount, err)
	}
	if !m.IsPositive() {
		return decimal.Zero, fmt.Errorf("minimum_amount must be positive")
	}
	return m, nil
}

// RouteFor picks the testnet or mainnet route.
func (a *Asset) RouteFor(testnet bool) Route {
	if testnet {
		return a.Testnet
	}
	return a.Mainnet
}

// TokenAddress returns the origin deposit token, or nil for native assets.
func (r Route) TokenAddress() *common.Address {
	return optionalAddress(r.Token)
}

// PayoutTokenAddress returns the payout token, or nil for native payouts.
func (r Route) PayoutTokenAddress() *common.Address {
	return optionalAddress(r.PayoutToken)
}

func optionalAddress(s string) *common.Address {
	if s == "" {
		return nil
	}
	addr := common.HexToAddress(s)
	return &addr
}
