package consensus

import (
	"math/big"
	"sort"
)

// MaxPowLimitBits is the compact form of the easiest target any chain may
// configure. It is also the fixed ceiling of NextDifficultyTarget.
const MaxPowLimitBits uint32 = 0x207fffff

// MedianTimeSpan is the number of trailing timestamps used for the
// median-time-past rule.
const MedianTimeSpan = 11

var (
	bigOne       = big.NewInt(1)
	maxTargetBig = BitsToTarget(MaxPowLimitBits)
)

// BitsToTarget decodes the compact representation: the high byte is a
// base-256 exponent and the low 23 bits a mantissa. A set sign bit yields a
// negative value, which no check accepts.
func BitsToTarget(bits uint32) *big.Int {
	exponent := uint(bits >> 24)
	mantissa := int64(bits & 0x007fffff)
	var t *big.Int
	if exponent <= 3 {
		t = big.NewInt(mantissa >> (8 * (3 - exponent)))
	} else {
		t = new(big.Int).Lsh(big.NewInt(mantissa), 8*(exponent-3))
	}
	if bits&0x00800000 != 0 && mantissa != 0 {
		t.Neg(t)
	}
	return t
}

// TargetToBits is the inverse of BitsToTarget, keeping the three most
// significant bytes. The round trip loses low-order precision.
func TargetToBits(target *big.Int) uint32 {
	if target == nil || target.Sign() == 0 {
		return 0
	}
	abs := new(big.Int).Abs(target)
	size := uint((abs.BitLen() + 7) / 8)
	var mantissa uint64
	if size <= 3 {
		mantissa = abs.Uint64() << (8 * (3 - size))
	} else {
		mantissa = new(big.Int).Rsh(abs, 8*(size-3)).Uint64()
	}
	// A set 0x00800000 bit would read back as a sign; move it into the
	// exponent instead.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		size++
	}
	bits := uint32(size)<<24 | uint32(mantissa) // #nosec G115 -- mantissa < 2^23 after normalisation.
	if target.Sign() < 0 {
		bits |= 0x00800000
	}
	return bits
}

// CheckProofOfWork reports whether hash, read as a big-endian integer, is
// at most target. The comparison stops at the first differing byte.
// Non-positive targets reject every hash.
func CheckProofOfWork(hash Hash32, target *big.Int) bool {
	if target == nil || target.Sign() <= 0 {
		return false
	}
	if target.BitLen() > 256 {
		return true
	}
	var t [32]byte
	target.FillBytes(t[:])
	for i := 0; i < 32; i++ {
		if hash[i] < t[i] {
			return true
		}
		if hash[i] > t[i] {
			return false
		}
	}
	return true
}

// NextDifficultyTarget scales prevTarget by actual/target timespan. The
// timespan is clamped to a factor of four either way and the result to
// [1, BitsToTarget(MaxPowLimitBits)].
func NextDifficultyTarget(prevTarget *big.Int, actualTimespan, targetTimespan int64) *big.Int {
	if targetTimespan <= 0 {
		return new(big.Int).Set(prevTarget)
	}
	lo := targetTimespan / 4
	hi := targetTimespan * 4
	if actualTimespan < lo {
		actualTimespan = lo
	}
	if actualTimespan > hi {
		actualTimespan = hi
	}
	next := new(big.Int).Mul(prevTarget, big.NewInt(actualTimespan))
	next.Quo(next, big.NewInt(targetTimespan))
	return clampTarget(next, maxTargetBig)
}

func clampTarget(t *big.Int, ceiling *big.Int) *big.Int {
	if t.Cmp(bigOne) < 0 {
		return big.NewInt(1)
	}
	if t.Cmp(ceiling) > 0 {
		return new(big.Int).Set(ceiling)
	}
	return t
}

// CalcASERTTarget implements aserti3-2d anchored at the genesis block:
//
//	target = anchor * 2^((timeDiff - spacing*heightDiff) / halfLife)
//
// where the fractional power of two uses the fixed-point cubic
// approximation so every node computes identical results.
func CalcASERTTarget(anchorTarget *big.Int, timeDiff int64, heightDiff uint64, spacing, halfLife int64, powLimit *big.Int) *big.Int {
	ideal := new(big.Int).Mul(big.NewInt(spacing), new(big.Int).SetUint64(heightDiff))
	exp := new(big.Int).Sub(big.NewInt(timeDiff), ideal)
	exp.Lsh(exp, 16)
	exp.Quo(exp, big.NewInt(halfLife))

	// Whole-number part rounds toward negative infinity; frac is in [0, 65535].
	shifts := new(big.Int).Rsh(exp, 16)
	frac := new(big.Int).Sub(exp, new(big.Int).Lsh(shifts, 16)).Int64()

	if shifts.Cmp(big.NewInt(300)) > 0 {
		return new(big.Int).Set(powLimit)
	}
	if shifts.Cmp(big.NewInt(-300)) < 0 {
		return big.NewInt(1)
	}

	f := big.NewInt(frac)
	poly := new(big.Int).Mul(big.NewInt(195766423245049), f)
	f2 := new(big.Int).Mul(f, f)
	poly.Add(poly, new(big.Int).Mul(big.NewInt(971821376), f2))
	poly.Add(poly, new(big.Int).Mul(big.NewInt(5127), new(big.Int).Mul(f2, f)))
	poly.Add(poly, new(big.Int).Lsh(bigOne, 47))
	poly.Rsh(poly, 48)
	factor := poly.Add(poly, big.NewInt(65536))

	next := new(big.Int).Mul(anchorTarget, factor)
	if n := shifts.Int64(); n < 0 {
		next.Rsh(next, uint(-n))
	} else {
		next.Lsh(next, uint(n))
	}
	next.Rsh(next, 16)
	return clampTarget(next, powLimit)
}

// HeaderSource gives difficulty rules access to ancestors by height.
type HeaderSource interface {
	HeaderAt(height uint64) (BlockHeader, bool, error)
}

// NextWorkRequired returns the bits a block at prevHeight+1 must carry.
func NextWorkRequired(spec *ChainSpec, prevHeight uint64, prev BlockHeader, headers HeaderSource) (uint32, error) {
	powLimit := spec.PowLimit()
	c := spec.Consensus
	switch c.DifficultyAdjustment {
	case DifficultyASERT:
		genesis, ok, err := headers.HeaderAt(0)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, txerr(BLOCK_ERR_TARGET_INVALID, "missing genesis header")
		}
		timeDiff := int64(prev.Time) - int64(genesis.Time) // #nosec G115 -- timestamps are far below 2^63.
		next := CalcASERTTarget(BitsToTarget(genesis.Bits), timeDiff, prevHeight,
			int64(c.TargetBlockTimeSecs), int64(c.AsertHalfLifeSecs), powLimit) // #nosec G115 -- validated spec.
		return TargetToBits(next), nil
	default:
		height := prevHeight + 1
		if height%c.RetargetIntervalBlocks != 0 {
			return prev.Bits, nil
		}
		first, ok, err := headers.HeaderAt(height - c.RetargetIntervalBlocks)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, txerr(BLOCK_ERR_TARGET_INVALID, "missing retarget window start")
		}
		var actual int64
		if prev.Time > first.Time {
			actual = int64(prev.Time - first.Time) // #nosec G115 -- timestamps are far below 2^63.
		}
		next := NextDifficultyTarget(BitsToTarget(prev.Bits), actual, spec.TargetTimespan())
		return TargetToBits(clampTarget(next, powLimit)), nil
	}
}

// MedianTimePast returns the median of up to the last MedianTimeSpan
// timestamps (most recent last).
func MedianTimePast(times []uint64) uint64 {
	if len(times) == 0 {
		return 0
	}
	if len(times) > MedianTimeSpan {
		times = times[len(times)-MedianTimeSpan:]
	}
	sorted := append([]uint64(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[(len(sorted)-1)/2]
}
