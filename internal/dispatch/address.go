package dispatch

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	"asset-pool-ledger/internal/payout"
)

// evmNetworks use 0x-prefixed 20 byte addresses
var evmNetworks = map[string]bool{
	"ETHEREUM": true,
	"POLYGON":  true,
	"ARBITRUM": true,
	"BSC":      true,
}

// ValidateAddress checks a destination before anything is reserved for it.
// Mixed-case EVM addresses must carry a valid EIP-55 checksum.
func ValidateAddress(network, addr string) error {
	network = strings.ToUpper(network)
	if !evmNetworks[network] {
		return payout.NewDispatchError(payout.ReasonUnsupportedNetwork,
			fmt.Sprintf("network %s is not supported", network), nil)
	}

	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return invalidAddress(addr, "expected 0x followed by 40 hex characters")
	}
	body := addr[2:]
	if _, err := hex.DecodeString(body); err != nil {
		return invalidAddress(addr, "not hex")
	}

	lower, upper := strings.ToLower(body), strings.ToUpper(body)
	if body == lower || body == upper {
		return nil
	}
	if ChecksumAddress(addr) != addr {
		return invalidAddress(addr, "checksum mismatch")
	}
	return nil
}

// ChecksumAddress returns the EIP-55 form of a hex address
func ChecksumAddress(addr string) string {
	body := strings.ToLower(strings.TrimPrefix(addr, "0x"))

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(body))
	hash := hex.EncodeToString(h.Sum(nil))

	out := make([]byte, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c >= 'a' && c <= 'f' && hash[i] >= '8' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return "0x" + string(out)
}

func invalidAddress(addr, why string) error {
	return payout.NewDispatchError(payout.ReasonInvalidDestination,
		fmt.Sprintf("invalid destination %q: %s", addr, why), nil)
}
