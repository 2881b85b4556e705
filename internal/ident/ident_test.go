package ident_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fentz26/hivemind/internal/ident"
)

func TestDerive(t *testing.T) {
	tests := map[string]struct {
		parts []string
	}{
		"Single part.":    {parts: []string{"write docs"}},
		"Multiple parts.": {parts: []string{"write docs", "main", "2024-01-01T00:00:00Z"}},
		"Empty input.":    {parts: nil},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			joined := ""
			for _, p := range test.parts {
				joined += p
			}
			sum := sha256.Sum256([]byte(joined))
			exp := hex.EncodeToString(sum[:])[:16]

			got := ident.Derive(test.parts...)
			assert.Len(got, ident.Length)
			assert.Equal(exp, got)
		})
	}
}

func TestDeriveIsSensitiveToEveryPart(t *testing.T) {
	a := ident.Derive("task", "main", "t1")
	b := ident.Derive("task", "main", "t2")
	assert.NotEqual(t, a, b)
}
