package solana

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKeyLength is the canonical base58 length of a Solana public key
// accepted for registration. Shorter encodings exist on-chain but user
// supplied keys must be full length.
const PublicKeyLength = 44

// ErrInvalidPublicKey indicates a key that is not a valid Solana public key.
var ErrInvalidPublicKey = errors.New("invalid public key")

// ValidatePublicKey checks that key is exactly 44 base58 characters and
// decodes to exactly 32 bytes.
func ValidatePublicKey(key string) error {
	if len(key) != PublicKeyLength {
		return fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidPublicKey, PublicKeyLength, len(key))
	}
	decoded, err := base58.Decode(key)
	if err != nil {
		return fmt.Errorf("%w: not base58: %v", ErrInvalidPublicKey, err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("%w: decodes to %d bytes, expected 32", ErrInvalidPublicKey, len(decoded))
	}
	return nil
}
