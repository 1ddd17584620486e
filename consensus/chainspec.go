package consensus

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	DifficultyRatio = "ratio"
	DifficultyASERT = "asert"
)

type NetworkParams struct {
	Name          string `mapstructure:"name" json:"name"`
	Symbol        string `mapstructure:"symbol" json:"symbol"`
	Decimals      uint8  `mapstructure:"decimals" json:"decimals"`
	AddressPrefix string `mapstructure:"address_prefix" json:"address_prefix"`
}

type ConsensusParams struct {
	HashFunction           string `mapstructure:"hash_function" json:"hash_function"`
	TargetBlockTimeSecs    uint64 `mapstructure:"target_block_time_secs" json:"target_block_time_secs"`
	DifficultyAdjustment   string `mapstructure:"difficulty_adjustment" json:"difficulty_adjustment"`
	RetargetIntervalBlocks uint64 `mapstructure:"retarget_interval_blocks" json:"retarget_interval_blocks"`
	AsertHalfLifeSecs      uint64 `mapstructure:"asert_half_life_secs" json:"asert_half_life_secs"`
	PowLimitBits           uint32 `mapstructure:"pow_limit_bits" json:"pow_limit_bits"`
	GenesisBits            uint32 `mapstructure:"genesis_bits" json:"genesis_bits"`
	GenesisTime            uint64 `mapstructure:"genesis_time" json:"genesis_time"`
	MaxFutureDriftSecs     uint64 `mapstructure:"max_future_drift_secs" json:"max_future_drift_secs"`
	MaxBlockSize           int    `mapstructure:"max_block_size" json:"max_block_size"`
}

type SupplyParams struct {
	MaxSupplySats         int64  `mapstructure:"max_supply_sats" json:"max_supply_sats"`
	HalvingIntervalBlocks uint64 `mapstructure:"halving_interval_blocks" json:"halving_interval_blocks"`
	PremineSats           int64  `mapstructure:"premine_sats" json:"premine_sats"`
}

type TxPolicy struct {
	MaxTxSize         int    `mapstructure:"max_tx_size" json:"max_tx_size"`
	MinFeePerKBSats   int64  `mapstructure:"min_fee_per_kb_sats" json:"min_fee_per_kb_sats"`
	DustThresholdSats int64  `mapstructure:"dust_threshold_sats" json:"dust_threshold_sats"`
	MaxInputs         int    `mapstructure:"max_inputs" json:"max_inputs"`
	MaxOutputs        int    `mapstructure:"max_outputs" json:"max_outputs"`
	CoinbaseMaturity  uint64 `mapstructure:"coinbase_maturity" json:"coinbase_maturity"`
}

// RevStopParams bounds revocable outputs. WindowBlocks is the largest
// window an output may declare.
type RevStopParams struct {
	WindowBlocks uint32 `mapstructure:"window_blocks" json:"window_blocks"`
}

// ChainSpec is the read-only parameter set every consensus function takes.
// Load it once at startup and never mutate it afterwards.
type ChainSpec struct {
	Network   NetworkParams   `mapstructure:"network" json:"network"`
	Consensus ConsensusParams `mapstructure:"consensus" json:"consensus"`
	Supply    SupplyParams    `mapstructure:"supply" json:"supply"`
	TxPolicy  TxPolicy        `mapstructure:"txpolicy" json:"txpolicy"`
	RevStop   RevStopParams   `mapstructure:"revstop" json:"revstop"`
}

// DefaultChainSpec returns the mainnet parameters.
func DefaultChainSpec() *ChainSpec {
	return &ChainSpec{
		Network: NetworkParams{
			Name:          "quantumcoin",
			Symbol:        "QC",
			Decimals:      8,
			AddressPrefix: "qc",
		},
		Consensus: ConsensusParams{
			HashFunction:           "sha256d",
			TargetBlockTimeSecs:    600,
			DifficultyAdjustment:   DifficultyASERT,
			RetargetIntervalBlocks: 2016,
			AsertHalfLifeSecs:      2592000,
			PowLimitBits:           0x1d00ffff,
			GenesisBits:            0x1d00ffff,
			GenesisTime:            1700000000,
			MaxFutureDriftSecs:     2 * 60 * 60,
			MaxBlockSize:           4_000_000,
		},
		Supply: SupplyParams{
			MaxSupplySats:         22_000_000 * 100_000_000,
			HalvingIntervalBlocks: 105120,
			PremineSats:           0,
		},
		TxPolicy: TxPolicy{
			MaxTxSize:         100000,
			MinFeePerKBSats:   1000,
			DustThresholdSats: 546,
			MaxInputs:         32,
			MaxOutputs:        32,
			CoinbaseMaturity:  100,
		},
		RevStop: RevStopParams{WindowBlocks: 30},
	}
}

// DevnetChainSpec keeps mainnet economics but uses the easiest target so
// blocks can be mined instantly in tests and local networks.
func DevnetChainSpec() *ChainSpec {
	s := DefaultChainSpec()
	s.Network.Name = "devnet"
	s.Network.AddressPrefix = "qcd"
	s.Consensus.DifficultyAdjustment = DifficultyRatio
	s.Consensus.PowLimitBits = MaxPowLimitBits
	s.Consensus.GenesisBits = MaxPowLimitBits
	return s
}

// PowLimit is the easiest target this chain accepts.
func (s *ChainSpec) PowLimit() *big.Int {
	return BitsToTarget(s.Consensus.PowLimitBits)
}

// TargetTimespan is the ideal duration of one retarget window in seconds.
func (s *ChainSpec) TargetTimespan() int64 {
	return int64(s.Consensus.RetargetIntervalBlocks * s.Consensus.TargetBlockTimeSecs) // #nosec G115 -- bounded by Validate.
}

func (s *ChainSpec) Validate() error {
	if s == nil {
		return errors.New("chainspec: nil")
	}
	if s.Network.Name == "" {
		return errors.New("chainspec: network.name is required")
	}
	if s.Network.AddressPrefix == "" {
		return errors.New("chainspec: network.address_prefix is required")
	}
	c := s.Consensus
	if c.HashFunction != "sha256d" {
		return fmt.Errorf("chainspec: unsupported hash_function %q", c.HashFunction)
	}
	if c.TargetBlockTimeSecs == 0 {
		return errors.New("chainspec: consensus.target_block_time_secs must be > 0")
	}
	switch c.DifficultyAdjustment {
	case DifficultyRatio:
		if c.RetargetIntervalBlocks == 0 {
			return errors.New("chainspec: consensus.retarget_interval_blocks must be > 0")
		}
		if c.RetargetIntervalBlocks > 1<<20 || c.TargetBlockTimeSecs > 1<<32 {
			return errors.New("chainspec: retarget window too large")
		}
	case DifficultyASERT:
		if c.AsertHalfLifeSecs == 0 {
			return errors.New("chainspec: consensus.asert_half_life_secs must be > 0")
		}
	default:
		return fmt.Errorf("chainspec: unknown difficulty_adjustment %q", c.DifficultyAdjustment)
	}
	powLimit := BitsToTarget(c.PowLimitBits)
	if powLimit.Sign() <= 0 || powLimit.Cmp(BitsToTarget(MaxPowLimitBits)) > 0 {
		return fmt.Errorf("chainspec: pow_limit_bits 0x%08x out of range", c.PowLimitBits)
	}
	genesis := BitsToTarget(c.GenesisBits)
	if genesis.Sign() <= 0 || genesis.Cmp(powLimit) > 0 {
		return fmt.Errorf("chainspec: genesis_bits 0x%08x out of range", c.GenesisBits)
	}
	if c.MaxBlockSize <= 0 {
		return errors.New("chainspec: consensus.max_block_size must be > 0")
	}
	sp := s.Supply
	if sp.MaxSupplySats <= 0 {
		return errors.New("chainspec: supply.max_supply_sats must be > 0")
	}
	if sp.PremineSats < 0 || sp.PremineSats > sp.MaxSupplySats {
		return errors.New("chainspec: supply.premine_sats out of range")
	}
	if sp.HalvingIntervalBlocks == 0 {
		return errors.New("chainspec: supply.halving_interval_blocks must be > 0")
	}
	p := s.TxPolicy
	if p.MaxTxSize <= 0 || p.MaxTxSize > c.MaxBlockSize {
		return errors.New("chainspec: txpolicy.max_tx_size out of range")
	}
	if p.MinFeePerKBSats < 0 || p.DustThresholdSats < 0 {
		return errors.New("chainspec: txpolicy fees must be >= 0")
	}
	if p.MaxInputs <= 0 || p.MaxOutputs <= 0 {
		return errors.New("chainspec: txpolicy.max_inputs and max_outputs must be > 0")
	}
	if s.RevStop.WindowBlocks == 0 {
		return errors.New("chainspec: revstop.window_blocks must be > 0")
	}
	return nil
}
