package minhash

import (
	"math/bits"
	"math/rand/v2"
)

// Arithmetic modulo the Mersenne prime 2^89-1. Values below the prime fit in
// 89 bits and are carried as (hi, lo) with hi < 2^25.

const (
	primeBits = 89
	hiBits    = primeBits - 64
	hiMask    = 1<<hiBits - 1
)

type u89 struct {
	hi, lo uint64
}

// isPrime reports whether v equals 2^89-1.
func (v u89) isPrime() bool {
	return v.hi == hiMask && v.lo == ^uint64(0)
}

func (v u89) isZero() bool {
	return v.hi == 0 && v.lo == 0
}

// random89 draws a uniform value in [0, 2^89-1).
func random89(rng *rand.Rand) u89 {
	for {
		v := u89{hi: rng.Uint64() & hiMask, lo: rng.Uint64()}
		if !v.isPrime() {
			return v
		}
	}
}

// mulAddMod returns (a*x + b) mod 2^89-1 for a, b below the prime and any
// 64-bit x below 2^63.
func mulAddMod(a u89, x uint64, b u89) u89 {
	// a*x as three limbs w2:w1:w0.
	loHi, w0 := bits.Mul64(a.lo, x)
	midHi, midLo := bits.Mul64(a.hi, x)
	w1, c := bits.Add64(midLo, loHi, 0)
	w2 := midHi + c

	var carry uint64
	w0, carry = bits.Add64(w0, b.lo, 0)
	w1, carry = bits.Add64(w1, b.hi, carry)
	w2 += carry

	// x mod (2^89-1) == (x & (2^89-1)) + (x >> 89).
	rHi, rLo := w1&hiMask, w0
	q := w1>>hiBits | w2<<(64-hiBits)

	sLo, c := bits.Add64(rLo, q, 0)
	sHi := rHi + c
	for sHi > hiMask || (sHi == hiMask && sLo == ^uint64(0)) {
		// s >= p: fold the bits above 89 back in, then subtract p if needed.
		over := sHi >> hiBits
		sHi &= hiMask
		sLo, c = bits.Add64(sLo, over, 0)
		sHi += c
		if sHi == hiMask && sLo == ^uint64(0) {
			sHi, sLo = 0, 0
		}
	}
	return u89{hi: sHi, lo: sLo}
}
