package addr

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/cometbft/cometbft/crypto/tmhash"
)

var ErrInvalidAddress = errors.New("invalid bech32 address")

// ConsensusAddressFromPubkey returns the upper-case hex consensus address of a
// raw consensus public key: the first 20 bytes of its sha256 digest
func ConsensusAddressFromPubkey(pubkey []byte) string {
	return fmt.Sprintf("%X", tmhash.SumTruncated(pubkey))
}

func Encode(raw []byte, prefix string) (string, error) {
	words, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("failed to convert bits: %w", err)
	}
	encoded, err := bech32.Encode(prefix, words)
	if err != nil {
		return "", fmt.Errorf("failed to encode bech32: %w", err)
	}
	return encoded, nil
}

// Decode returns the human readable prefix and the raw payload bytes.
// Validator operator addresses can exceed the 90 character bech32 limit on
// chains with long prefixes, so no length limit is applied.
func Decode(address string) (string, []byte, error) {
	prefix, words, err := bech32.DecodeNoLimit(address)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrInvalidAddress, address, err)
	}
	raw, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrInvalidAddress, address, err)
	}
	return prefix, raw, nil
}

// Reencode moves an address into another bech32 family, e.g. from the
// validator operator prefix to the account prefix
func Reencode(address string, toPrefix string) (string, error) {
	_, raw, err := Decode(address)
	if err != nil {
		return "", err
	}
	return Encode(raw, toPrefix)
}

// HexToBech32 encodes an upper or lower case hex address under prefix
func HexToBech32(hexAddress string, prefix string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToUpper(hexAddress), "0X"))
	if err != nil {
		return "", fmt.Errorf("invalid hex address %s: %w", hexAddress, err)
	}
	return Encode(raw, prefix)
}
