// Package format turns on-chain fixed-point integers and token symbols into
// display strings.
package format

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is the scale of Perennial Fixed6 values.
const DefaultDecimals = 6

const displayDigits = 2

// FormatPrice renders value, a fixed-point integer scaled by 10^decimals, with
// en-US digit grouping and exactly two fractional digits. Extra precision is
// truncated toward zero.
func FormatPrice(value any, decimals int) (string, error) {
	n, err := ToBigInt(value)
	if err != nil {
		return "", err
	}
	return Units(n, decimals), nil
}

// Units is the total core of FormatPrice.
func Units(value *big.Int, decimals int) string {
	if value == nil {
		value = new(big.Int)
	}
	if decimals < 0 {
		decimals = 0
	}
	d := decimal.NewFromBigInt(value, -int32(decimals)).Truncate(displayDigits)
	fixed := d.StringFixed(displayDigits)
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")
	whole, frac, _ := strings.Cut(fixed, ".")
	out := groupThousands(whole) + "." + frac
	if neg && strings.Trim(out, "0.,") != "" {
		return "-" + out
	}
	return out
}

// ToBigInt normalizes integer-like input to an arbitrary-precision integer.
// Floats are floored, matching how fractional sizes reach the formatter.
func ToBigInt(value any) (*big.Int, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("format: nil value")
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("format: nil value")
		}
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case float32:
		return floatToBigInt(float64(v))
	case float64:
		return floatToBigInt(v)
	case json.Number:
		return stringToBigInt(string(v))
	case string:
		return stringToBigInt(v)
	default:
		return nil, fmt.Errorf("format: unsupported value type %T", value)
	}
}

func floatToBigInt(f float64) (*big.Int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("format: non-finite value %v", f)
	}
	n, _ := big.NewFloat(math.Floor(f)).Int(nil)
	return n, nil
}

func stringToBigInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		base = 0
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("format: %q is not an integer", s)
	}
	return n, nil
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

var tokenNames = map[string]string{
	"eth":   "Ethereum",
	"btc":   "Bitcoin",
	"sol":   "Solana",
	"arb":   "Arbitrum",
	"op":    "Optimism",
	"matic": "Polygon",
	"link":  "Chainlink",
	"aave":  "Aave",
	"uni":   "Uniswap",
	"crv":   "Curve",
	"mkr":   "Maker",
	"comp":  "Compound",
	"snx":   "Synthetix",
	"yfi":   "Yearn Finance",
	"sushi": "SushiSwap",
	"grt":   "The Graph",
	"bal":   "Balancer",
	"ens":   "Ethereum Name Service",
	"ldo":   "Lido",
	"rpl":   "Rocket Pool",
}

// TokenDisplayName maps a token symbol to its human name, falling back to the
// symbol with its first letter upper-cased.
func TokenDisplayName(symbol string) string {
	if name, ok := tokenNames[strings.ToLower(symbol)]; ok {
		return name
	}
	if symbol == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(symbol)
	return string(unicode.ToUpper(r)) + symbol[size:]
}
