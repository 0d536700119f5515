package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"stablecoin_go/internal/domain"
)

// FeedConfig binds a collateral asset to its price feed.
type FeedConfig struct {
	Asset    common.Address
	Feed     common.Address
	Decimals uint8
}

// Registry maps approved collateral assets to price feeds. It is fixed at
// construction and read-only afterwards, so it needs no locking.
type Registry struct {
	feeds  map[common.Address]FeedConfig
	tokens []common.Address
}

// NewRegistry builds the registry from parallel slices. decimals may be nil,
// in which case every feed is assumed to report DefaultFeedDecimals.
// Registering an asset twice is rejected.
func NewRegistry(assets, feeds []common.Address, decimals []uint8) (*Registry, error) {
	const op = "register"
	if len(assets) != len(feeds) || (decimals != nil && len(decimals) != len(assets)) {
		return nil, &domain.ValidationError{Op: op, Err: fmt.Errorf("%w: %d assets, %d feeds, %d decimals",
			domain.ErrLengthMismatch, len(assets), len(feeds), len(decimals))}
	}

	r := &Registry{
		feeds:  make(map[common.Address]FeedConfig, len(assets)),
		tokens: make([]common.Address, 0, len(assets)),
	}
	for i, asset := range assets {
		if asset == (common.Address{}) || feeds[i] == (common.Address{}) {
			return nil, &domain.ValidationError{Op: op, Err: fmt.Errorf("%w at index %d", domain.ErrZeroAddress, i)}
		}
		if _, dup := r.feeds[asset]; dup {
			return nil, &domain.ValidationError{Op: op, Err: fmt.Errorf("%w: %s", domain.ErrDuplicateAsset, asset.Hex())}
		}
		dec := uint8(DefaultFeedDecimals)
		if decimals != nil {
			dec = decimals[i]
		}
		if dec > MaxFeedDecimals {
			return nil, &domain.ValidationError{Op: op, Err: fmt.Errorf("feed %s: %d decimals exceeds %d",
				feeds[i].Hex(), dec, MaxFeedDecimals)}
		}
		r.feeds[asset] = FeedConfig{Asset: asset, Feed: feeds[i], Decimals: dec}
		r.tokens = append(r.tokens, asset)
	}
	return r, nil
}

// IsSupported reports whether asset has a registered price feed.
func (r *Registry) IsSupported(asset common.Address) bool {
	_, ok := r.feeds[asset]
	return ok
}

// Feed returns the feed binding for asset.
func (r *Registry) Feed(asset common.Address) (FeedConfig, bool) {
	cfg, ok := r.feeds[asset]
	return cfg, ok
}

// CollateralTokens returns the assets in registration order.
func (r *Registry) CollateralTokens() []common.Address {
	out := make([]common.Address, len(r.tokens))
	copy(out, r.tokens)
	return out
}
