// derive_key.go prints the viewing keys and first address of an account
// derived from a seed phrase file.
// Usage: go run scripts/derive_key.go <phrasefile> [account] [network]
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Klingon-tech/warpwallet/config"
	"github.com/Klingon-tech/warpwallet/internal/keys"
	"github.com/Klingon-tech/warpwallet/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <phrasefile> [account] [network]")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fail(err)
	}
	account := uint32(0)
	if len(os.Args) > 2 {
		n, err := strconv.ParseUint(os.Args[2], 10, 32)
		if err != nil {
			fail(err)
		}
		account = uint32(n)
	}
	network := config.Mainnet
	if len(os.Args) > 3 {
		network = config.NetworkType(os.Args[3])
	}
	types.SetAddressHRPs(config.HRPs(network))
	coinType := config.DefaultCoinType(network)

	seed, err := keys.SeedFromPhrase(strings.TrimSpace(string(data)), "")
	if err != nil {
		fail(err)
	}
	root, err := keys.NewMasterKey(seed)
	if err != nil {
		fail(err)
	}

	var pa types.PaymentAddress
	for _, pool := range []types.Pool{types.Sapling, types.Orchard} {
		sk, err := root.ShieldedSpendingKey(pool, coinType, account)
		if err != nil {
			fail(err)
		}
		fvk, err := sk.FullViewingKey()
		if err != nil {
			fail(err)
		}
		vk, err := keys.EncodeViewingKey(pool, fvk)
		if err != nil {
			fail(err)
		}
		recv, err := fvk.Address(0)
		if err != nil {
			fail(err)
		}
		if pool == types.Sapling {
			pa.Sapling = &recv
		} else {
			pa.Orchard = &recv
		}
		fmt.Printf("%s_fvk=%s\n", pool, vk)
	}

	tacct, err := root.TransparentAccount(coinType, account)
	if err != nil {
		fail(err)
	}
	first, err := tacct.DerivePath(0, 0)
	if err != nil {
		fail(err)
	}
	fmt.Printf("transparent_xpub=%s\n", tacct.Neuter().String())
	fmt.Printf("transparent_address=%s\n", first.Address())
	fmt.Printf("address=%s\n", pa)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
