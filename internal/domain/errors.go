package domain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable.
// Engine errors never are: every failure is terminal for that call.
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

var (
	// Validation
	ErrZeroAmount       = errors.New("amount must be more than zero")
	ErrUnsupportedAsset = errors.New("collateral asset not allowed")
	ErrLengthMismatch   = errors.New("collateral assets and price feeds must be the same length")
	ErrDuplicateAsset   = errors.New("collateral asset registered twice")
	ErrZeroAddress      = errors.New("zero address")

	// Ledger
	ErrInsufficientCollateral = errors.New("insufficient collateral deposited")
	ErrInsufficientDebt       = errors.New("burn amount exceeds minted debt")
	ErrArithmeticOverflow     = errors.New("arithmetic overflow")

	// External token calls
	ErrTransferFailed = errors.New("transfer failed")
	ErrMintFailed     = errors.New("mint failed")
	ErrBurnFailed     = errors.New("burn failed")

	// Solvency
	ErrBreaksHealthFactor                   = errors.New("breaks health factor")
	ErrHealthFactorOk                       = errors.New("health factor ok")
	ErrHealthFactorNotImproved              = errors.New("health factor not improved")
	ErrInsufficientCollateralForLiquidation = errors.New("insufficient collateral for liquidation")

	// Pricing
	ErrInvalidPrice = errors.New("invalid price")
	ErrStalePrice   = errors.New("stale price")

	// Engine lifecycle
	ErrReentrantCall = errors.New("reentrant call")
	ErrEngineHalted  = errors.New("engine halted")
	ErrSequenceGap   = errors.New("journal sequence gap")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)

// ValidationError is raised before any mutation: zero amounts, unsupported
// assets, malformed registries, balances the caller does not have.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) IsRetriable() bool { return false }

// TransferError wraps a failed or refused external token call.
type TransferError struct {
	Op    string
	Token common.Address
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Token.Hex(), e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) IsRetriable() bool { return false }

// SolvencyError carries the health factor that caused the rejection.
type SolvencyError struct {
	Op           string
	User         common.Address
	HealthFactor *uint256.Int
	Err          error
}

func (e *SolvencyError) Error() string {
	hf := "n/a"
	if e.HealthFactor != nil {
		hf = e.HealthFactor.Dec()
	}
	return fmt.Sprintf("%s: %v (user %s, health factor %s)", e.Op, e.Err, e.User.Hex(), hf)
}

func (e *SolvencyError) Unwrap() error { return e.Err }

func (e *SolvencyError) IsRetriable() bool { return false }

// PricingError reports a price reading the engine refused to use.
type PricingError struct {
	Asset common.Address
	Err   error
}

func (e *PricingError) Error() string {
	return "price for " + e.Asset.Hex() + ": " + e.Err.Error()
}

func (e *PricingError) Unwrap() error { return e.Err }

func (e *PricingError) IsRetriable() bool { return false }

// NetworkError represents a network-related error that may be retriable.
// Only the price feed workers produce it.
type NetworkError struct {
	Op        string // Operation that failed (e.g., "connect", "read", "poll")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
