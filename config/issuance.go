package config

import (
	"net"
	"strconv"
)

// DefaultSupply is the number of units minted for each asset at genesis.
const DefaultSupply uint64 = 1_000_000_000_000

// Issuer derivation paths (BIP-32, hardened). The token and fiat issuers
// use distinct account indices so one seed could serve both.
const (
	TokenIssuerPath = "m/44'/8888'/0'/0/0"
	FiatIssuerPath  = "m/44'/8888'/1'/0/0"
)

// JoinHostPort formats an address for net.Listen.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
