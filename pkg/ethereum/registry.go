package ethereum

import (
	"fmt"
	"sort"

	"github.com/chainsafe/escrow-bridge/pkg/config"
	"go.uber.org/zap"
)

// Registry resolves gateways by configured network name or chain ID.
// It is immutable after construction.
type Registry struct {
	byName    map[string]Gateway
	byChainID map[int64]Gateway
}

// NewRegistry wraps already-built gateways.
func NewRegistry(gateways ...Gateway) (*Registry, error) {
	r := &Registry{
		byName:    make(map[string]Gateway, len(gateways)),
		byChainID: make(map[int64]Gateway, len(gateways)),
	}
	for _, gw := range gateways {
		if _, dup := r.byName[gw.Name()]; dup {
			return nil, fmt.Errorf("duplicate chain name %q", gw.Name())
		}
		if _, dup := r.byChainID[gw.ChainID()]; dup {
			return nil, fmt.Errorf("duplicate chain id %d", gw.ChainID())
		}
		r.byName[gw.Name()] = gw
		r.byChainID[gw.ChainID()] = gw
	}
	return r, nil
}

// Dial connects a Client for every configured chain. On failure, clients
// already dialed are closed.
func Dial(chains map[string]config.ChainConfig, logger *zap.Logger) (*Registry, func(), error) {
	names := make([]string, 0, len(chains))
	for name := range chains {
		names = append(names, name)
	}
	sort.Strings(names)

	clients := make([]*Client, 0, len(names))
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}

	gateways := make([]Gateway, 0, len(names))
	for _, name := range names {
		c, err := NewClient(name, chains[name], logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		clients = append(clients, c)
		gateways = append(gateways, c)
	}

	r, err := NewRegistry(gateways...)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return r, closeAll, nil
}

// Get returns the gateway registered under name.
func (r *Registry) Get(name string) (Gateway, error) {
	gw, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, name)
	}
	return gw, nil
}

// ByChainID returns the gateway for chainID.
func (r *Registry) ByChainID(chainID int64) (Gateway, error) {
	gw, ok := r.byChainID[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: chain id %d", ErrUnknownChain, chainID)
	}
	return gw, nil
}

// Names lists configured networks in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
