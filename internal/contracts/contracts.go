// Package contracts holds the Perennial deployment addresses on Arbitrum
// Sepolia and lookups between market names and addresses.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MarketAddresses holds the supported Perennial markets.
type MarketAddresses struct {
	PythEthUsdc common.Address
	PythBtcUsdc common.Address
}

// Addresses is the deployed contract set on one chain.
type Addresses struct {
	USDC          common.Address
	MultiInvoker  common.Address
	MarketFactory common.Address
	Markets       MarketAddresses
}

// Default is the Arbitrum Sepolia deployment.
var Default = Addresses{
	USDC:          common.HexToAddress("0xEd64A15A6223588794A976d344990001a065F3f1"),
	MultiInvoker:  common.HexToAddress("0x40652853a0e51D28F4eb0ca70b48E77B5dC8520E"),
	MarketFactory: common.HexToAddress("0x247CeaE79E5C5778e00F449eDEC1d49c06f1Ede8"),
	Markets: MarketAddresses{
		PythEthUsdc: common.HexToAddress("0x6e710fDDE613609C5044813db674D4da35a593FB"),
		PythBtcUsdc: common.HexToAddress("0xFEb2588d42768f0dCeF6652E138d3C9D306e1FaB"),
	},
}

// UnknownMarket is shown for addresses outside the market set.
const UnknownMarket = "Unknown Market"

// Market keys as used by snapshot and indexer results.
const (
	KeyETH = "eth"
	KeyBTC = "btc"
)

// MarketAddressList returns the supported markets in display order.
func MarketAddressList() []common.Address {
	return []common.Address{Default.Markets.PythEthUsdc, Default.Markets.PythBtcUsdc}
}

// MarketsByKey maps snapshot keys to market addresses.
func MarketsByKey() map[string]common.Address {
	return map[string]common.Address{
		KeyETH: Default.Markets.PythEthUsdc,
		KeyBTC: Default.Markets.PythBtcUsdc,
	}
}

// MarketName resolves a market address to its pair name.
func MarketName(address string) (string, bool) {
	switch {
	case sameAddress(address, Default.Markets.PythEthUsdc):
		return "ETH/USDC", true
	case sameAddress(address, Default.Markets.PythBtcUsdc):
		return "BTC/USDC", true
	}
	return "", false
}

// DisplayMarketName is MarketName with the "Unknown Market" placeholder.
func DisplayMarketName(address string) string {
	if name, ok := MarketName(address); ok {
		return name
	}
	return UnknownMarket
}

// MarketKey resolves a market address to its snapshot key.
func MarketKey(address common.Address) (string, bool) {
	switch address {
	case Default.Markets.PythEthUsdc:
		return KeyETH, true
	case Default.Markets.PythBtcUsdc:
		return KeyBTC, true
	}
	return "", false
}

// MarketByName resolves a ticker, asset name or pair name, in any case.
func MarketByName(name string) (common.Address, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "eth", "ethereum", "eth/usdc":
		return Default.Markets.PythEthUsdc, true
	case "btc", "bitcoin", "btc/usdc":
		return Default.Markets.PythBtcUsdc, true
	}
	return common.Address{}, false
}

// ResolveMarket accepts either a hex address or a name known to MarketByName.
func ResolveMarket(ref string) (common.Address, bool) {
	ref = strings.TrimSpace(ref)
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), true
	}
	return MarketByName(ref)
}

func sameAddress(raw string, addr common.Address) bool {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return false
	}
	return common.HexToAddress(raw) == addr
}
