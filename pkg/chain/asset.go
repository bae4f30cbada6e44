/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// AssetPrecision is the fixed-point precision of asset strings, rendered
// "12.345678 TONO". Amounts are carried as int64 micro-units so quota
// arithmetic stays exact.
const AssetPrecision = 6

var (
	microPerToken = big.NewInt(1_000_000)
	weiPerMicro   = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)
)

// ParseAsset parses an asset string into micro-units and its symbol.
func ParseAsset(s string) (int64, string, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) != 2 {
		return 0, "", fmt.Errorf("invalid asset %q: want '<amount> <symbol>'", s)
	}

	amount, symbol := fields[0], fields[1]

	if symbol != strings.ToUpper(symbol) || symbol == "" {
		return 0, "", fmt.Errorf("invalid asset symbol %q", symbol)
	}

	whole, frac := amount, ""
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		whole, frac = amount[:i], amount[i+1:]
	}

	if len(frac) != AssetPrecision {
		return 0, "", fmt.Errorf("invalid asset %q: want %d decimal places", s, AssetPrecision)
	}

	micro, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || !micro.IsInt64() {
		return 0, "", fmt.Errorf("invalid asset amount %q", amount)
	}

	return micro.Int64(), symbol, nil
}

// FormatMicro renders micro-units as an asset string.
func FormatMicro(micro int64, symbol string) string {
	sign := ""
	if micro < 0 {
		sign, micro = "-", -micro
	}

	return fmt.Sprintf("%s%d.%06d %s", sign, micro/1_000_000, micro%1_000_000, symbol)
}

// WeiToMicro truncates an 18-decimal wei amount to micro-units.
func WeiToMicro(wei *big.Int) int64 {
	micro := new(big.Int).Quo(wei, weiPerMicro)

	return micro.Int64()
}

// MicroToWei widens micro-units to an 18-decimal wei amount.
func MicroToWei(micro int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(micro), weiPerMicro)
}

// FormatWei renders a wei amount as an asset string, truncating past the
// asset precision.
func FormatWei(wei *big.Int, symbol string) string {
	return FormatMicro(WeiToMicro(wei), symbol)
}

// Tokens converts a whole-token count to micro-units.
func Tokens(n int64) int64 {
	return n * microPerToken.Int64()
}
