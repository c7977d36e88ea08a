package manifest

import (
	"crypto/sha512"
	"encoding/hex"
	"hash"

	"github.com/minio/sha256-simd"
)

// Algorithm names a digest algorithm. It is never declared in the manifest;
// it is inferred from the digest length.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

// AlgorithmForDigest infers the algorithm from a hex digest's length
func AlgorithmForDigest(hexDigest string) (Algorithm, bool) {
	switch len(hexDigest) {
	case sha256.Size * 2:
		return SHA256, true
	case sha512.Size * 2:
		return SHA512, true
	default:
		return "", false
	}
}

// New returns a fresh hasher for the algorithm
func (a Algorithm) New() hash.Hash {
	switch a {
	case SHA512:
		return sha512.New()
	default:
		return sha256.New()
	}
}

// Sum digests data in one shot and returns lower-case hex
func (a Algorithm) Sum(data []byte) string {
	h := a.New()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
