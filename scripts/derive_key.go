// derive_key.go prints the issuer public keys derived from a seed phrase.
// With no argument it generates a fresh mnemonic first.
// Usage: go run scripts/derive_key.go ["seed phrase words ..."]
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/cryptoken/config"
	"github.com/Klingon-tech/cryptoken/internal/keys"
)

func main() {
	mnemonic := strings.Join(os.Args[1:], " ")
	if mnemonic == "" {
		var err error
		mnemonic, err = keys.GenerateMnemonic()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("mnemonic=%s\n", mnemonic)
	}
	if !keys.ValidateMnemonic(mnemonic) {
		fmt.Fprintln(os.Stderr, "invalid BIP-39 mnemonic")
		os.Exit(1)
	}

	for _, p := range []struct{ name, path string }{
		{"token", config.TokenIssuerPath},
		{"myr", config.FiatIssuerPath},
	} {
		kp, err := keys.FromSeedPhrase(mnemonic, p.path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("%s_pubkey=%s\n", p.name, kp.PublicKey)
	}
}
