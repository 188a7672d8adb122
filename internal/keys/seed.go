package keys

import (
	"fmt"
	"strings"

	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
	"github.com/tyler-smith/go-bip39"
)

// SeedSize is the length of a derived seed in bytes (512 bits).
const SeedSize = 64

// MnemonicEntropyBits is the entropy size for 24-word phrases.
const MnemonicEntropyBits = 256

// GeneratePhrase creates a new 24-word BIP-39 phrase.
func GeneratePhrase() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate phrase: %w", err)
	}
	return phrase, nil
}

// ValidatePhrase checks if a phrase is valid per BIP-39
// (correct word count, valid words, valid checksum).
func ValidatePhrase(phrase string) bool {
	return bip39.IsMnemonicValid(normalizePhrase(phrase))
}

// SeedFromPhrase derives a 512-bit seed from a phrase and optional passphrase
// using PBKDF2-SHA512 as specified in BIP-39.
func SeedFromPhrase(phrase, passphrase string) ([]byte, error) {
	phrase = normalizePhrase(phrase)
	if !bip39.IsMnemonicValid(phrase) {
		return nil, fmt.Errorf("%w: phrase fails BIP-39 validation", walleterr.ErrInvalidKey)
	}
	seed, err := bip39.NewSeedWithErrorChecking(phrase, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: derive seed: %v", walleterr.ErrInvalidKey, err)
	}
	return seed, nil
}

func normalizePhrase(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
