package clvm

import "crypto/sha256"

// CoinID computes a coin's canonical name: sha256(parent_id || puzzle_hash
// || canonical(amount)), where canonical(amount) is the CLVM minimal
// signed-integer atom encoding (empty for zero, no leading sign-extension
// byte unless the high bit would otherwise be set).
func CoinID(parentID, puzzleHash [32]byte, amount uint64) [32]byte {
	amountAtom := NewInt(int64(amount)).Atom

	h := sha256.New()
	h.Write(parentID[:])
	h.Write(puzzleHash[:])
	h.Write(amountAtom)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
