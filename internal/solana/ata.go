package solana

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program IDs used in associated token address derivation.
const (
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

// FindAssociatedTokenAddress derives the associated token account for a
// wallet and mint. Returns an error when either key is malformed or no
// off-curve bump exists.
func FindAssociatedTokenAddress(wallet, mint string) (string, error) {
	walletBytes, err := base58.Decode(wallet)
	if err != nil || len(walletBytes) != 32 {
		return "", fmt.Errorf("%w: wallet %q", ErrInvalidPublicKey, wallet)
	}
	mintBytes, err := base58.Decode(mint)
	if err != nil || len(mintBytes) != 32 {
		return "", fmt.Errorf("%w: mint %q", ErrInvalidPublicKey, mint)
	}
	tokenProgramBytes, err := base58.Decode(TokenProgramID)
	if err != nil {
		return "", err
	}
	ataProgramBytes, err := base58.Decode(AssociatedTokenProgramID)
	if err != nil {
		return "", err
	}

	seeds := [][]byte{walletBytes, tokenProgramBytes, mintBytes}
	ata := derivePDA(seeds, ataProgramBytes)
	if ata == "" {
		return "", fmt.Errorf("no off-curve address for wallet %s mint %s", wallet, mint)
	}
	return ata, nil
}

// derivePDA derives a Program Derived Address using the Solana algorithm:
// sha256(seeds || bump || programID || "ProgramDerivedAddress"), searching
// bumps from 255 down for the first off-curve point.
func derivePDA(seeds [][]byte, programID []byte) string {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:])
		}
	}

	return ""
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
