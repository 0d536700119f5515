package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stablecoin_go/internal/domain"
)

// normalizedPrice reads the live feed for asset and scales the answer to
// PrecisionDecimals. Every call re-reads the source.
func (e *Engine) normalizedPrice(asset common.Address) (*uint256.Int, error) {
	cfg, ok := e.registry.Feed(asset)
	if !ok {
		return nil, &domain.ValidationError{Op: "price", Err: fmt.Errorf("%w: %s", domain.ErrUnsupportedAsset, asset.Hex())}
	}

	reading, err := e.prices.LatestPrice(cfg.Feed)
	if err != nil {
		if !errors.Is(err, domain.ErrStalePrice) && !errors.Is(err, domain.ErrInvalidPrice) {
			err = fmt.Errorf("%w: %w", domain.ErrInvalidPrice, err)
		}
		return nil, &domain.PricingError{Asset: asset, Err: err}
	}

	if reading.Answer == nil || reading.Answer.Sign() <= 0 {
		return nil, &domain.PricingError{Asset: asset, Err: fmt.Errorf("%w: non-positive answer %v", domain.ErrInvalidPrice, reading.Answer)}
	}
	if reading.Decimals != 0 && reading.Decimals != cfg.Decimals {
		return nil, &domain.PricingError{Asset: asset, Err: fmt.Errorf("%w: feed reports %d decimals, configured %d",
			domain.ErrInvalidPrice, reading.Decimals, cfg.Decimals)}
	}
	if e.maxPriceAge > 0 {
		if reading.UpdatedAt.IsZero() {
			return nil, &domain.PricingError{Asset: asset, Err: fmt.Errorf("%w: reading has no timestamp", domain.ErrStalePrice)}
		}
		age := e.now().Sub(reading.UpdatedAt)
		if age > e.maxPriceAge {
			return nil, &domain.PricingError{Asset: asset, Err: fmt.Errorf("%w: %s old, limit %s", domain.ErrStalePrice, age, e.maxPriceAge)}
		}
		if age < -MaxClockSkew {
			return nil, &domain.PricingError{Asset: asset, Err: fmt.Errorf("%w: reading is %s in the future", domain.ErrStalePrice, -age)}
		}
	}

	price, overflow := uint256.FromBig(reading.Answer)
	if overflow {
		return nil, &domain.PricingError{Asset: asset, Err: fmt.Errorf("%w: answer exceeds 256 bits", domain.ErrInvalidPrice)}
	}

	switch {
	case cfg.Decimals < PrecisionDecimals:
		// ADDITIONAL_FEED_PRECISION: 1e10 for an 8-decimal feed.
		scaled, overflow := new(uint256.Int).MulOverflow(price, pow10(PrecisionDecimals-cfg.Decimals))
		if overflow {
			return nil, &domain.PricingError{Asset: asset, Err: fmt.Errorf("%w: normalized price exceeds 256 bits", domain.ErrInvalidPrice)}
		}
		price = scaled
	case cfg.Decimals > PrecisionDecimals:
		price = new(uint256.Int).Div(price, pow10(cfg.Decimals-PrecisionDecimals))
		if price.IsZero() {
			return nil, &domain.PricingError{Asset: asset, Err: fmt.Errorf("%w: answer below engine precision", domain.ErrInvalidPrice)}
		}
	}
	return price, nil
}

// USDValue converts amount of asset to an 18-decimal USD value.
func (e *Engine) USDValue(asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	price, err := e.normalizedPrice(asset)
	if err != nil {
		return nil, err
	}
	v, err := mulDiv(price, amount, precision)
	if err != nil {
		return nil, fmt.Errorf("usd value of %s: %w", asset.Hex(), err)
	}
	return v, nil
}

// TokenAmountFromUSD converts an 18-decimal USD value to an amount of asset.
func (e *Engine) TokenAmountFromUSD(asset common.Address, usd *uint256.Int) (*uint256.Int, error) {
	price, err := e.normalizedPrice(asset)
	if err != nil {
		return nil, err
	}
	v, err := mulDiv(usd, precision, price)
	if err != nil {
		return nil, fmt.Errorf("token amount of %s: %w", asset.Hex(), err)
	}
	return v, nil
}
