// Package entrycode generates the short public identifiers handed to
// members. Codes are never reused: the caller's existence check covers
// every store a code could already live in.
package entrycode

import (
	"context"
	"crypto/rand"
	"fmt"

	"enroll/pkg/platform/sentinel"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Length of generated codes. 36^8 keeps the collision probability per
	// draw around 1/2.8e12 at expected volumes.
	Length = 8
	// defaultMaxAttempts bounds the sample-and-check loop so a broken or
	// adversarial existence check cannot spin forever.
	defaultMaxAttempts = 64
)

// ErrSpaceExhausted is returned when every attempted code was reported as
// taken. At sane volumes this means the existence check is lying.
var ErrSpaceExhausted = fmt.Errorf("entry code space: %w", sentinel.ErrExhausted)

// ExistsFunc reports whether a candidate code is already taken.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Generator produces unique entry codes against a caller-supplied
// existence check.
type Generator struct {
	maxAttempts int
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxAttempts overrides the retry bound; values below one are ignored.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n >= 1 {
			g.maxAttempts = n
		}
	}
}

// New constructs a Generator with the default retry bound.
func New(opts ...Option) *Generator {
	g := &Generator{maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate samples random codes until exists reports one free, the retry
// bound is hit, or the existence check fails.
func (g *Generator) Generate(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := randomCode()
		if err != nil {
			return "", fmt.Errorf("sample entry code: %w", err)
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check entry code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrSpaceExhausted
}

func randomCode() (string, error) {
	out := make([]byte, 0, Length)
	buf := make([]byte, Length)
	for len(out) < Length {
		n := Length - len(out)
		if _, err := rand.Read(buf[:n]); err != nil {
			return "", err
		}
		out = appendUnbiased(out, buf[:n])
	}
	return string(out), nil
}

// appendUnbiased maps random bytes onto the alphabet. Bytes at or above
// the largest multiple of the alphabet size are discarded; taking them
// modulo the alphabet would favor its first 256%36 characters.
func appendUnbiased(dst, src []byte) []byte {
	const limit = 256 - 256%len(alphabet)
	for _, b := range src {
		if int(b) >= limit {
			continue
		}
		dst = append(dst, alphabet[int(b)%len(alphabet)])
	}
	return dst
}
