package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const orderNumberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewOrderNumber returns PREFIX-<epoch millis>-<6 random base36 chars>.
// Uniqueness is enforced by the orders_order_number_key constraint.
func NewOrderNumber(prefix string, now time.Time) string {
	var b strings.Builder
	base := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
		}
		b.WriteByte(orderNumberAlphabet[n.Int64()])
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), b.String())
}
