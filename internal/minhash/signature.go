package minhash

import (
	"encoding/binary"

	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
)

// Signature is a MinHash sketch. Its length equals the engine's hash count.
type Signature []uint64

// Jaccard estimates the Jaccard similarity of the sets behind a and b as the
// fraction of positions on which they agree.
func Jaccard(a, b Signature) (float64, error) {
	if len(a) != len(b) {
		return 0, apperrors.Newf(apperrors.ErrSignatureLength, "%d != %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, apperrors.New(apperrors.ErrSignatureLength, "empty signature")
	}
	agree := 0
	for i := range a {
		if a[i] == b[i] {
			agree++
		}
	}
	return float64(agree) / float64(len(a)), nil
}

// MarshalBinary encodes s as consecutive big-endian uint64 values.
func (s Signature) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8*len(s))
	for i, v := range s {
		binary.BigEndian.PutUint64(buf[8*i:], v)
	}
	return buf, nil
}

// UnmarshalBinary decodes the MarshalBinary encoding.
func (s *Signature) UnmarshalBinary(data []byte) error {
	if len(data)%8 != 0 {
		return apperrors.Newf(apperrors.ErrSignatureLength, "encoded signature has %d bytes", len(data))
	}
	out := make(Signature, len(data)/8)
	for i := range out {
		out[i] = binary.BigEndian.Uint64(data[8*i:])
	}
	*s = out
	return nil
}
