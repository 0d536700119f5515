package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestNetworkError(t *testing.T) {
	baseErr := errors.New("connection refused")

	t.Run("retriable error", func(t *testing.T) {
		err := NewNetworkError("connect", baseErr)

		if !err.IsRetriable() {
			t.Error("Expected error to be retriable")
		}

		if err.Error() != "connect: connection refused" {
			t.Errorf("Error message = %q, want %q", err.Error(), "connect: connection refused")
		}

		if !errors.Is(err, baseErr) {
			t.Error("Expected error to wrap baseErr")
		}
	})

	t.Run("fatal error", func(t *testing.T) {
		err := NewFatalNetworkError("auth", baseErr)

		if err.IsRetriable() {
			t.Error("Expected error to not be retriable")
		}
	})
}

func TestEngineErrorsAreTerminal(t *testing.T) {
	user := common.HexToAddress("0x01")
	asset := common.HexToAddress("0x02")

	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", &ValidationError{Op: "deposit", Err: ErrZeroAmount}, ErrZeroAmount},
		{"transfer", &TransferError{Op: "transferFrom", Token: asset, Err: ErrTransferFailed}, ErrTransferFailed},
		{"solvency", &SolvencyError{Op: "mint", User: user, HealthFactor: uint256.NewInt(5), Err: ErrBreaksHealthFactor}, ErrBreaksHealthFactor},
		{"pricing", &PricingError{Asset: asset, Err: ErrStalePrice}, ErrStalePrice},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tc.err)
			if !errors.Is(wrapped, tc.sentinel) {
				t.Errorf("Expected %v to match sentinel %v", wrapped, tc.sentinel)
			}
			if IsRetriable(wrapped) {
				t.Error("Engine errors must not be retriable")
			}
		})
	}
}

func TestSolvencyErrorCarriesHealthFactor(t *testing.T) {
	err := error(&SolvencyError{
		Op:           "redeem",
		User:         common.HexToAddress("0xabc"),
		HealthFactor: uint256.NewInt(900),
		Err:          ErrBreaksHealthFactor,
	})

	var se *SolvencyError
	if !errors.As(err, &se) {
		t.Fatal("Expected errors.As to find SolvencyError")
	}
	if se.HealthFactor.Uint64() != 900 {
		t.Errorf("Expected health factor 900, got %s", se.HealthFactor.Dec())
	}
	if !strings.Contains(err.Error(), "health factor 900") {
		t.Errorf("Error message %q should include the health factor", err.Error())
	}
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "collateral[0].feed", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [collateral[0].feed]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
}
