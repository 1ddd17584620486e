package consensus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var fundOut = OutPoint{TxID: Hash32{0xaa}, Vout: 0}

func fundedSet(owner testKey, value int64, height uint64, coinbase bool) UtxoSet {
	return UtxoSet{fundOut: {Value: value, Type: P2PQ(owner.pk), Height: height, Coinbase: coinbase}}
}

func TestValidateTxValidSpend(t *testing.T) {
	spec := testSpec()
	alice, bob := newTestKey(1), newTestKey(2)
	utxos := fundedSet(alice, 100_000, 1, false)

	tx := spendTx(fundOut, TxOut{Value: 90_000, Type: P2PQ(bob.pk)})
	signTx(t, &tx, alice)

	s, err := ValidateTx(spec, 5, &tx, false, utxos)
	require.NoError(t, err)
	require.Equal(t, int64(10_000), s.Fee)
	require.Equal(t, int64(100_000), s.SumIn)
	require.Equal(t, tx.TxID(), s.TxID)
	require.Equal(t, len(tx.Bytes()), s.Size)
	require.NoError(t, CheckFeePolicy(spec, s))
}

func TestValidateTxSignatureFailures(t *testing.T) {
	spec := testSpec()
	alice, mallory := newTestKey(1), newTestKey(3)
	utxos := fundedSet(alice, 100_000, 1, false)

	tx := spendTx(fundOut, TxOut{Value: 90_000, Type: P2PQ(mallory.pk)})
	signTx(t, &tx, mallory)
	_, err := ValidateTx(spec, 5, &tx, false, utxos)
	requireCode(t, err, TX_ERR_SIG_INVALID)

	// A valid signature stops verifying once any signed field changes.
	signTx(t, &tx, alice)
	tx.Outputs[0].Value = 95_000
	_, err = ValidateTx(spec, 5, &tx, false, utxos)
	requireCode(t, err, TX_ERR_SIG_INVALID)

	tx.Outputs[0].Value = 90_000
	tx.Inputs[0].Signature = tx.Inputs[0].Signature[:100]
	_, err = ValidateTx(spec, 5, &tx, false, utxos)
	requireCode(t, err, TX_ERR_SIG_INVALID)
}

func TestValidateTxStageOrder(t *testing.T) {
	alice := newTestKey(1)

	t.Run("size before counts", func(t *testing.T) {
		spec := testSpec()
		spec.TxPolicy.MaxTxSize = 2000
		spec.TxPolicy.MaxOutputs = 1
		tx := spendTx(fundOut, TxOut{Value: 1000, Type: P2PQ(alice.pk)}, TxOut{Value: 1000, Type: P2PQ(alice.pk)})
		_, err := ValidateTx(spec, 1, &tx, false, UtxoSet{})
		requireCode(t, err, TX_ERR_TOO_LARGE)
	})

	t.Run("counts", func(t *testing.T) {
		spec := testSpec()
		spec.TxPolicy.MaxInputs = 1
		tx := spendTx(fundOut, TxOut{Value: 1000, Type: P2PQ(alice.pk)})
		tx.Inputs = append(tx.Inputs, TxIn{Prevout: OutPoint{Vout: 9}})
		_, err := ValidateTx(spec, 1, &tx, false, UtxoSet{})
		requireCode(t, err, TX_ERR_COUNT_LIMIT)
	})

	t.Run("value range before dust", func(t *testing.T) {
		spec := testSpec()
		for _, v := range []int64{0, -1, spec.Supply.MaxSupplySats + 1} {
			tx := spendTx(fundOut, TxOut{Value: v, Type: P2PQ(alice.pk)})
			_, err := ValidateTx(spec, 1, &tx, false, UtxoSet{})
			requireCode(t, err, TX_ERR_VALUE_RANGE)
		}
	})

	t.Run("dust before utxo lookup", func(t *testing.T) {
		spec := testSpec()
		tx := spendTx(fundOut, TxOut{Value: spec.TxPolicy.DustThresholdSats - 1, Type: P2PQ(alice.pk)})
		_, err := ValidateTx(spec, 1, &tx, false, UtxoSet{})
		requireCode(t, err, TX_ERR_DUST)

		tx.Outputs[0].Value = spec.TxPolicy.DustThresholdSats
		_, err = ValidateTx(spec, 1, &tx, false, UtxoSet{})
		requireCode(t, err, TX_ERR_MISSING_UTXO)
	})

	t.Run("coinbase stops after shape", func(t *testing.T) {
		spec := testSpec()
		cb := coinbaseTx(4, 5000, alice.pk)
		s, err := ValidateTx(spec, 4, &cb, true, nil)
		require.NoError(t, err)
		require.Equal(t, int64(5000), s.SumOut)

		cb.Outputs[0].Value = 10
		_, err = ValidateTx(spec, 4, &cb, true, nil)
		requireCode(t, err, TX_ERR_DUST)
	})
}

func TestValidateTxMalformed(t *testing.T) {
	spec := testSpec()
	alice := newTestKey(1)

	noInputs := Tx{Version: 1, Outputs: []TxOut{{Value: 1000, Type: P2PQ(alice.pk)}}}
	_, err := ValidateTx(spec, 1, &noInputs, false, UtxoSet{})
	requireCode(t, err, TX_ERR_MALFORMED)

	withInputs := spendTx(fundOut, TxOut{Value: 1000, Type: P2PQ(alice.pk)})
	_, err = ValidateTx(spec, 1, &withInputs, true, nil)
	requireCode(t, err, TX_ERR_MALFORMED)

	noOutputs := spendTx(fundOut)
	_, err = ValidateTx(spec, 1, &noOutputs, false, UtxoSet{})
	requireCode(t, err, TX_ERR_MALFORMED)

	shortKey := spendTx(fundOut, TxOut{Value: 1000, Type: P2PQ(alice.pk[:32])})
	_, err = ValidateTx(spec, 1, &shortKey, false, UtxoSet{})
	requireCode(t, err, TX_ERR_MALFORMED)

	for _, w := range []uint32{0, spec.RevStop.WindowBlocks + 1} {
		tx := spendTx(fundOut, TxOut{Value: 1000, Type: P2PQRevocable(alice.pk, w)})
		_, err = ValidateTx(spec, 1, &tx, false, UtxoSet{})
		requireCode(t, err, TX_ERR_MALFORMED)
	}
}

func TestValidateTxCoinbaseMaturity(t *testing.T) {
	spec := testSpec()
	alice := newTestKey(1)
	utxos := fundedSet(alice, 100_000, 10, true)
	tx := spendTx(fundOut, TxOut{Value: 90_000, Type: P2PQ(alice.pk)})
	signTx(t, &tx, alice)

	_, err := ValidateTx(spec, 12, &tx, false, utxos)
	requireCode(t, err, TX_ERR_COINBASE_IMMATURE)

	_, err = ValidateTx(spec, 13, &tx, false, utxos)
	require.NoError(t, err)
}

func TestValidateTxRevStop(t *testing.T) {
	spec := testSpec()
	alice := newTestKey(1)
	utxos := UtxoSet{fundOut: {Value: 100_000, Type: P2PQRevocable(alice.pk, 5), Height: 10}}

	tx := spendTx(fundOut, TxOut{Value: 90_000, Type: P2PQ(alice.pk)})
	tx.Inputs[0].Cancel = true
	signTx(t, &tx, alice)

	_, err := ValidateTx(spec, 15, &tx, false, utxos)
	require.NoError(t, err, "cancel on the last block of the window")

	_, err = ValidateTx(spec, 16, &tx, false, utxos)
	requireCode(t, err, TX_ERR_CANCEL_OUTSIDE_WINDOW)

	tx.Inputs[0].Cancel = false
	_, err = ValidateTx(spec, 100, &tx, false, utxos)
	require.NoError(t, err, "ordinary spend after the window")

	// Window checks come before the signature check.
	tx.Inputs[0].Cancel = true
	tx.Inputs[0].Signature = nil
	_, err = ValidateTx(spec, 16, &tx, false, utxos)
	requireCode(t, err, TX_ERR_CANCEL_OUTSIDE_WINDOW)
	_, err = ValidateTx(spec, 12, &tx, false, utxos)
	requireCode(t, err, TX_ERR_SIG_INVALID)
}

func TestValidateTxRevStopMisuse(t *testing.T) {
	spec := testSpec()
	alice := newTestKey(1)
	utxos := fundedSet(alice, 100_000, 1, false)
	tx := spendTx(fundOut, TxOut{Value: 90_000, Type: P2PQ(alice.pk)})
	tx.Inputs[0].Cancel = true
	signTx(t, &tx, alice)

	_, err := ValidateTx(spec, 5, &tx, false, utxos)
	requireCode(t, err, TX_ERR_REVSTOP_MISUSE)
}

func TestValidateTxFunds(t *testing.T) {
	spec := testSpec()
	alice := newTestKey(1)
	utxos := fundedSet(alice, 100_000, 1, false)

	tx := spendTx(fundOut, TxOut{Value: 100_001, Type: P2PQ(alice.pk)})
	signTx(t, &tx, alice)
	_, err := ValidateTx(spec, 5, &tx, false, utxos)
	requireCode(t, err, TX_ERR_INSUFFICIENT_FUNDS)

	exact := spendTx(fundOut, TxOut{Value: 100_000, Type: P2PQ(alice.pk)})
	signTx(t, &exact, alice)
	s, err := ValidateTx(spec, 5, &exact, false, utxos)
	require.NoError(t, err)
	require.Zero(t, s.Fee)
	requireCode(t, CheckFeePolicy(spec, s), TX_ERR_FEE_TOO_LOW)
}

func TestValidateTxDuplicateInput(t *testing.T) {
	spec := testSpec()
	alice := newTestKey(1)
	utxos := fundedSet(alice, 100_000, 1, false)
	tx := spendTx(fundOut, TxOut{Value: 150_000, Type: P2PQ(alice.pk)})
	tx.Inputs = append(tx.Inputs, TxIn{Prevout: fundOut})
	signTx(t, &tx, alice)

	_, err := ValidateTx(spec, 5, &tx, false, utxos)
	requireCode(t, err, TX_ERR_MISSING_UTXO)
}

func TestValidateTxLookupErrorPassesThrough(t *testing.T) {
	spec := testSpec()
	alice := newTestKey(1)
	boom := errors.New("disk on fire")
	lookup := UtxoLookupFunc(func(OutPoint) (UtxoEntry, bool, error) { return UtxoEntry{}, false, boom })

	tx := spendTx(fundOut, TxOut{Value: 1000, Type: P2PQ(alice.pk)})
	_, err := ValidateTx(spec, 5, &tx, false, lookup)
	require.ErrorIs(t, err, boom)
	require.False(t, IsRejection(err))
}

type countingVerifier struct{ calls int }

func (c *countingVerifier) VerifyDilithium2(pk, msg, sig []byte) bool {
	c.calls++
	return true
}

func TestTxValidatorUsesInjectedVerifier(t *testing.T) {
	spec := testSpec()
	alice := newTestKey(1)
	utxos := fundedSet(alice, 100_000, 1, false)
	tx := spendTx(fundOut, TxOut{Value: 90_000, Type: P2PQ(alice.pk)})

	cv := &countingVerifier{}
	v := TxValidator{Spec: spec, Verifier: cv}
	_, err := v.Validate(5, &tx, false, utxos)
	require.NoError(t, err)
	require.Equal(t, 1, cv.calls)
}

func TestMinFeeRoundsUp(t *testing.T) {
	spec := testSpec()
	spec.TxPolicy.MinFeePerKBSats = 1000
	require.Equal(t, int64(1), MinFee(spec, 1))
	require.Equal(t, int64(1000), MinFee(spec, 1000))
	require.Equal(t, int64(1001), MinFee(spec, 1001))
	spec.TxPolicy.MinFeePerKBSats = 0
	require.Zero(t, MinFee(spec, 5000))
}

func TestErrorFormatting(t *testing.T) {
	var nilErr *TxError
	require.Equal(t, "<nil>", nilErr.Error())
	require.Equal(t, "TX_ERR_DUST", txerr(TX_ERR_DUST, "").Error())
	require.Equal(t, "TX_ERR_DUST: out 0", txerr(TX_ERR_DUST, "out 0").Error())
	require.Equal(t, ErrorCode(""), CodeOf(errors.New("x")))
}
