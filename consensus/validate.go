package consensus

import (
	"quantumcoin.dev/node/crypto"
)

// UtxoLookup resolves an outpoint to its unspent entry. A non-nil error is
// an operational failure and aborts validation unchanged.
type UtxoLookup interface {
	LookupUtxo(op OutPoint) (UtxoEntry, bool, error)
}

type UtxoLookupFunc func(op OutPoint) (UtxoEntry, bool, error)

func (f UtxoLookupFunc) LookupUtxo(op OutPoint) (UtxoEntry, bool, error) { return f(op) }

// TxSummary is what a successful validation learned about a transaction.
type TxSummary struct {
	TxID   Hash32
	Size   int
	SumIn  int64
	SumOut int64
	Fee    int64
}

// ValidateTx runs the full staged pipeline with the default Dilithium2
// verifier. See TxValidator.Validate.
func ValidateTx(spec *ChainSpec, height uint64, tx *Tx, isCoinbase bool, utxos UtxoLookup) (*TxSummary, error) {
	v := TxValidator{Spec: spec}
	return v.Validate(height, tx, isCoinbase, utxos)
}

// TxValidator binds a chain spec to a signature verifier. The zero
// Verifier means crypto.StdCryptoProvider.
type TxValidator struct {
	Spec     *ChainSpec
	Verifier crypto.Verifier
}

func (v *TxValidator) verifier() crypto.Verifier {
	if v.Verifier == nil {
		return crypto.StdCryptoProvider{}
	}
	return v.Verifier
}

// Validate checks tx against the chainspec and, for non-coinbase transactions,
// against utxos at height. Stages run in a fixed order and the first
// failure is returned:
//
//  1. encoded size
//  2. input and output counts
//  3. output value range, then dust
//  4. structural shape (input presence, pubkey and window sizes)
//  5. per input: existence, coinbase maturity, RevStop rules, signature
//  6. value conservation
//
// Coinbase transactions stop after stage 4.
func (v *TxValidator) Validate(height uint64, tx *Tx, isCoinbase bool, utxos UtxoLookup) (*TxSummary, error) {
	if tx == nil {
		return nil, txerr(TX_ERR_MALFORMED, "nil tx")
	}
	size, err := CheckTxSanity(v.Spec, tx, isCoinbase)
	if err != nil {
		return nil, err
	}
	sumOut, err := tx.SumOutputs()
	if err != nil {
		return nil, err
	}
	sighash := Sighash(tx)
	summary := &TxSummary{TxID: sighash, Size: size, SumOut: sumOut}
	if isCoinbase {
		return summary, nil
	}

	sumIn, err := v.checkInputs(height, tx, sighash, utxos)
	if err != nil {
		return nil, err
	}
	if sumIn < sumOut {
		return nil, txerrf(TX_ERR_INSUFFICIENT_FUNDS, "inputs %d < outputs %d", sumIn, sumOut)
	}
	summary.SumIn = sumIn
	summary.Fee = sumIn - sumOut
	return summary, nil
}

// CheckTxSanity runs the context-free stages (size, counts, values, shape)
// and returns the encoded size. The mempool admits transactions on this
// check alone.
func CheckTxSanity(spec *ChainSpec, tx *Tx, isCoinbase bool) (int, error) {
	p := spec.TxPolicy
	size := tx.SerializeSize()
	if size > p.MaxTxSize {
		return 0, txerrf(TX_ERR_TOO_LARGE, "size %d > %d", size, p.MaxTxSize)
	}
	if len(tx.Inputs) > p.MaxInputs {
		return 0, txerrf(TX_ERR_COUNT_LIMIT, "inputs %d > %d", len(tx.Inputs), p.MaxInputs)
	}
	if len(tx.Outputs) > p.MaxOutputs {
		return 0, txerrf(TX_ERR_COUNT_LIMIT, "outputs %d > %d", len(tx.Outputs), p.MaxOutputs)
	}
	if err := checkOutputValues(spec, tx); err != nil {
		return 0, err
	}
	if err := checkTxShape(spec, tx, isCoinbase); err != nil {
		return 0, err
	}
	return size, nil
}

func checkOutputValues(spec *ChainSpec, tx *Tx) error {
	var sum int64
	for i, out := range tx.Outputs {
		if out.Value <= 0 || out.Value > spec.Supply.MaxSupplySats {
			return txerrf(TX_ERR_VALUE_RANGE, "output %d value %d", i, out.Value)
		}
		if out.Value < spec.TxPolicy.DustThresholdSats {
			return txerrf(TX_ERR_DUST, "output %d value %d < %d", i, out.Value, spec.TxPolicy.DustThresholdSats)
		}
		next, err := addInt64(sum, out.Value)
		if err != nil || next > spec.Supply.MaxSupplySats {
			return txerr(TX_ERR_VALUE_RANGE, "output sum exceeds max supply")
		}
		sum = next
	}
	return nil
}

func checkTxShape(spec *ChainSpec, tx *Tx, isCoinbase bool) error {
	if len(tx.Outputs) == 0 {
		return txerr(TX_ERR_MALFORMED, "no outputs")
	}
	if isCoinbase && len(tx.Inputs) != 0 {
		return txerr(TX_ERR_MALFORMED, "coinbase with inputs")
	}
	if !isCoinbase && len(tx.Inputs) == 0 {
		return txerr(TX_ERR_MALFORMED, "no inputs")
	}
	for i, out := range tx.Outputs {
		if len(out.Type.Pubkey) != crypto.PublicKeySize {
			return txerrf(TX_ERR_MALFORMED, "output %d pubkey length %d", i, len(out.Type.Pubkey))
		}
		switch out.Type.Kind {
		case KindP2PQ:
		case KindP2PQRevocable:
			w := out.Type.WindowBlocks
			if w == 0 || w > spec.RevStop.WindowBlocks {
				return txerrf(TX_ERR_MALFORMED, "output %d revstop window %d", i, w)
			}
		default:
			return txerrf(TX_ERR_MALFORMED, "output %d kind %d", i, out.Type.Kind)
		}
	}
	return nil
}

func (v *TxValidator) checkInputs(height uint64, tx *Tx, sighash Hash32, utxos UtxoLookup) (int64, error) {
	var sumIn int64
	seen := make(map[OutPoint]struct{}, len(tx.Inputs))
	for i, in := range tx.Inputs {
		// A second spend of the same prevout finds nothing left to spend.
		if _, dup := seen[in.Prevout]; dup {
			return 0, txerrf(TX_ERR_MISSING_UTXO, "input %d spends %s:%d twice", i, in.Prevout.TxID, in.Prevout.Vout)
		}
		seen[in.Prevout] = struct{}{}

		entry, err := CheckSpendable(v.Spec, height, in.Prevout, utxos)
		if err != nil {
			return 0, err
		}
		if err := CheckSpendAuthorization(v.verifier(), height, in, entry, sighash); err != nil {
			return 0, err
		}
		next, err := addInt64(sumIn, entry.Value)
		if err != nil {
			return 0, txerr(TX_ERR_VALUE_RANGE, "input sum overflow")
		}
		sumIn = next
	}
	return sumIn, nil
}

// CheckSpendable resolves op and enforces coinbase maturity.
func CheckSpendable(spec *ChainSpec, height uint64, op OutPoint, utxos UtxoLookup) (UtxoEntry, error) {
	entry, ok, err := utxos.LookupUtxo(op)
	if err != nil {
		return UtxoEntry{}, err
	}
	if !ok {
		return UtxoEntry{}, txerrf(TX_ERR_MISSING_UTXO, "%s:%d", op.TxID, op.Vout)
	}
	if entry.Coinbase && saturatingSub(height, entry.Height) < spec.TxPolicy.CoinbaseMaturity {
		return UtxoEntry{}, txerrf(TX_ERR_COINBASE_IMMATURE, "created at %d, spent at %d", entry.Height, height)
	}
	return entry, nil
}

// CheckSpendAuthorization applies the RevStop rules for the spent output's
// kind and verifies the input signature over sighash.
func CheckSpendAuthorization(verifier crypto.Verifier, height uint64, in TxIn, entry UtxoEntry, sighash Hash32) error {
	switch entry.Type.Kind {
	case KindP2PQ:
		if in.Cancel {
			return txerr(TX_ERR_REVSTOP_MISUSE, "cancel on non-revocable output")
		}
	case KindP2PQRevocable:
		if in.Cancel && saturatingSub(height, entry.Height) > uint64(entry.Type.WindowBlocks) {
			return txerrf(TX_ERR_CANCEL_OUTSIDE_WINDOW, "created at %d, window %d, now %d", entry.Height, entry.Type.WindowBlocks, height)
		}
	default:
		return txerrf(TX_ERR_MALFORMED, "unknown output kind %d", entry.Type.Kind)
	}
	if !verifier.VerifyDilithium2(entry.Type.Pubkey, sighash[:], in.Signature) {
		return txerr(TX_ERR_SIG_INVALID, "")
	}
	return nil
}

// MinFee returns ceil(size * min_fee_per_kb / 1000).
func MinFee(spec *ChainSpec, size int) int64 {
	rate := spec.TxPolicy.MinFeePerKBSats
	if rate <= 0 || size <= 0 {
		return 0
	}
	return (int64(size)*rate + 999) / 1000
}

// CheckFeePolicy is the relay/mining policy layered over ValidateTx. It is
// not a consensus rule: blocks may contain transactions paying less.
func CheckFeePolicy(spec *ChainSpec, s *TxSummary) error {
	if floor := MinFee(spec, s.Size); s.Fee < floor {
		return txerrf(TX_ERR_FEE_TOO_LOW, "fee %d < %d", s.Fee, floor)
	}
	return nil
}
