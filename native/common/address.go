package common

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nestegg/crypto"
)

// ModuleAddress derives the deterministic custody address for a module name.
// Module accounts hold no keys; they exist only as ledger authorization
// identities.
func ModuleAddress(name string) crypto.Address {
	hash := ethcrypto.Keccak256([]byte("nestegg/module/" + name))
	return crypto.NewAddress(crypto.SavePrefix, hash[12:])
}
