package imaging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	a := Fingerprint("payload")
	b := Fingerprint("payload")

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintKnownValue(t *testing.T) {
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		Fingerprint("abc"))
}

func TestFingerprintCoversFullPayload(t *testing.T) {
	// Payloads sharing a long common prefix must never collide: the hash
	// covers every byte, not a truncated head.
	prefix := strings.Repeat("A", 4096)
	a := Fingerprint(prefix + "1")
	b := Fingerprint(prefix + "2")

	assert.NotEqual(t, a, b)
}
