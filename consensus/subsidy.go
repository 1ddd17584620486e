package consensus

import "math/big"

// subsidyEras is the number of halvings after which the subsidy is zero.
const subsidyEras = 64

// InitialSubsidy returns the era-0 block subsidy s0, chosen so that
// interval * (s0 + s0/2 + ... ) over subsidyEras eras does not exceed
// max_supply_sats - premine_sats:
//
//	s0 = (cap - premine) * 2^(E-1) / (interval * (2^E - 1))
func InitialSubsidy(spec *ChainSpec) int64 {
	mineable := spec.Supply.MaxSupplySats - spec.Supply.PremineSats
	if mineable <= 0 || spec.Supply.HalvingIntervalBlocks == 0 {
		return 0
	}
	num := new(big.Int).Lsh(big.NewInt(mineable), subsidyEras-1)
	den := new(big.Int).Lsh(big.NewInt(1), subsidyEras)
	den.Sub(den, big.NewInt(1))
	den.Mul(den, new(big.Int).SetUint64(spec.Supply.HalvingIntervalBlocks))
	return num.Quo(num, den).Int64()
}

// BlockSubsidy returns the coinbase subsidy at height. It halves every
// halving_interval_blocks and reaches zero after subsidyEras halvings.
//
// Height 0 is in era 0; the premine is granted on top of it by
// MaxCoinbaseValue.
func BlockSubsidy(spec *ChainSpec, height uint64) int64 {
	if spec.Supply.HalvingIntervalBlocks == 0 {
		return 0
	}
	era := height / spec.Supply.HalvingIntervalBlocks
	if era >= subsidyEras {
		return 0
	}
	return InitialSubsidy(spec) >> era
}

// MaxCoinbaseValue is the largest total a coinbase at height may pay out
// given the fees collected by the rest of the block.
func MaxCoinbaseValue(spec *ChainSpec, height uint64, fees int64) (int64, error) {
	limit := BlockSubsidy(spec, height)
	if height == 0 {
		var err error
		if limit, err = addInt64(limit, spec.Supply.PremineSats); err != nil {
			return 0, err
		}
	}
	return addInt64(limit, fees)
}
