// Package pool handles pool identifier and sponsor address parsing, and
// validation of pool parameters before they are stored.
package pool

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
)

// Supported collateral tokens.
const (
	CollateralUSDC = "USDC"
	CollateralDAI  = "DAI"
	CollateralUSDT = "USDT"
	CollateralBUSD = "BUSD"
)

var validCollateral = map[string]bool{
	CollateralUSDC: true,
	CollateralDAI:  true,
	CollateralUSDT: true,
	CollateralBUSD: true,
}

// idRegex matches: {synthetic}-{collateral}
// Example: jEUR-USDC
var idRegex = regexp.MustCompile(`^(j[A-Z]{3,5})-([A-Z]{3,5})$`)

var sponsorRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

var (
	ErrInvalidID         = errors.New("pool: invalid pool id")
	ErrInvalidCollateral = errors.New("pool: unsupported collateral")
	ErrInvalidSponsor    = errors.New("pool: invalid sponsor address")
	ErrInvalidParams     = errors.New("pool: invalid parameters")
)

// ID is a parsed pool identifier.
type ID struct {
	Raw        string `json:"id"`
	Synthetic  string `json:"synthetic_symbol"`
	Collateral string `json:"collateral_symbol"`
}

// ParseID parses and validates a pool identifier.
// Format: {synthetic}-{collateral}
func ParseID(id string) (*ID, error) {
	matches := idRegex.FindStringSubmatch(id)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected {synthetic}-{collateral}, e.g. jEUR-USDC)", ErrInvalidID, id)
	}
	if !validCollateral[matches[2]] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCollateral, matches[2])
	}
	return &ID{Raw: id, Synthetic: matches[1], Collateral: matches[2]}, nil
}

// NormalizeSponsor validates a sponsor address and returns it lower-cased.
func NormalizeSponsor(addr string) (string, error) {
	if !sponsorRegex.MatchString(addr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSponsor, addr)
	}
	return strings.ToLower(addr), nil
}

// Validate checks a pool's parameters for consistency. Ratios are
// collateral-per-token factors.
func Validate(p *model.Pool) error {
	id, err := ParseID(p.ID)
	if err != nil {
		return err
	}
	if p.SyntheticSymbol != "" && p.SyntheticSymbol != id.Synthetic {
		return fmt.Errorf("%w: synthetic symbol %s does not match id %s", ErrInvalidParams, p.SyntheticSymbol, p.ID)
	}
	if p.CollateralSymbol != "" && p.CollateralSymbol != id.Collateral {
		return fmt.Errorf("%w: collateral symbol %s does not match id %s", ErrInvalidParams, p.CollateralSymbol, p.ID)
	}

	switch {
	case !p.CollateralizationRatio.IsPositive():
		return fmt.Errorf("%w: collateralization ratio must be positive", ErrInvalidParams)
	case !p.CapDepositRatio.IsPositive():
		return fmt.Errorf("%w: cap deposit ratio must be positive", ErrInvalidParams)
	case p.CapDepositRatio.Lt(p.CollateralizationRatio):
		return fmt.Errorf("%w: cap deposit ratio %s below collateralization ratio %s",
			ErrInvalidParams, p.CapDepositRatio, p.CollateralizationRatio)
	case p.LiquidationRatio.Sign() < 0 || p.CollateralRequirement.Sign() < 0:
		return fmt.Errorf("%w: liquidation parameters must not be negative", ErrInvalidParams)
	case p.FeePercentage.Sign() < 0 || p.FeePercentage.Gte(fp.One):
		return fmt.Errorf("%w: fee percentage %s outside [0, 1)", ErrInvalidParams, p.FeePercentage)
	case p.CapMintAmount.Sign() < 0 || p.TotalTokensOutstanding.Sign() < 0 || p.MinSponsorTokens.Sign() < 0:
		return fmt.Errorf("%w: amounts must not be negative", ErrInvalidParams)
	case p.CollateralDecimals > fp.Decimals || p.SyntheticDecimals > fp.Decimals:
		return fmt.Errorf("%w: token decimals above %d", ErrInvalidParams, fp.Decimals)
	case p.Price != nil && (!p.Price.CollateralPrice.IsPositive() || !p.Price.SyntheticPrice.IsPositive()):
		return fmt.Errorf("%w: prices must be positive", ErrInvalidParams)
	}
	return nil
}

// Normalize fills the symbols from the pool id.
func Normalize(p *model.Pool) error {
	id, err := ParseID(p.ID)
	if err != nil {
		return err
	}
	p.SyntheticSymbol = id.Synthetic
	p.CollateralSymbol = id.Collateral
	return nil
}
