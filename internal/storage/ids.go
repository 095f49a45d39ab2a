package storage

import (
	"crypto/rand"
	"math/big"
)

const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewShipmentID returns an identifier of the form FBA-XXXXXX.
func NewShipmentID() string {
	buf := make([]byte, 6)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic(err)
		}
		buf[i] = idAlphabet[n.Int64()]
	}
	return "FBA-" + string(buf)
}
