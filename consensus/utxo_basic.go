package consensus

import (
	"bytes"
	"sort"
)

// UtxoSet is a plain in-memory UTXO map. It backs InMemoryChainState and
// tests; persistent nodes use node/store.
type UtxoSet map[OutPoint]UtxoEntry

func (s UtxoSet) LookupUtxo(op OutPoint) (UtxoEntry, bool, error) {
	e, ok := s[op]
	return e, ok, nil
}

// CreatedUtxo pairs a new outpoint with its entry.
type CreatedUtxo struct {
	OutPoint OutPoint
	Entry    UtxoEntry
}

// UtxoView stages spends and creations over a read-only base. Lookups see
// the staged state, so later transactions in a block can spend earlier
// outputs and cannot spend anything twice. Nothing reaches the base until
// the caller commits Spent and Created.
type UtxoView struct {
	base    UtxoLookup
	added   map[OutPoint]UtxoEntry
	removed map[OutPoint]struct{}
}

func NewUtxoView(base UtxoLookup) *UtxoView {
	return &UtxoView{
		base:    base,
		added:   make(map[OutPoint]UtxoEntry),
		removed: make(map[OutPoint]struct{}),
	}
}

func (v *UtxoView) LookupUtxo(op OutPoint) (UtxoEntry, bool, error) {
	if e, ok := v.added[op]; ok {
		return e, true, nil
	}
	if _, gone := v.removed[op]; gone {
		return UtxoEntry{}, false, nil
	}
	return v.base.LookupUtxo(op)
}

// Spend marks op as consumed. Outputs created and spent inside the same
// view never appear in Spent or Created.
func (v *UtxoView) Spend(op OutPoint) {
	if _, ok := v.added[op]; ok {
		delete(v.added, op)
		return
	}
	v.removed[op] = struct{}{}
}

// Add stages a new output. An outpoint that is already unspent cannot be
// created again.
func (v *UtxoView) Add(op OutPoint, e UtxoEntry) error {
	_, exists, err := v.LookupUtxo(op)
	if err != nil {
		return err
	}
	if exists {
		return txerrf(TX_ERR_DUPLICATE_OUTPUT, "%s:%d already unspent", op.TxID, op.Vout)
	}
	v.added[op] = e
	return nil
}

// AddTxOutputs stages every output of tx at height.
func (v *UtxoView) AddTxOutputs(tx *Tx, txid Hash32, height uint64, coinbase bool) error {
	for i, out := range tx.Outputs {
		op := OutPoint{TxID: txid, Vout: uint32(i)} // #nosec G115 -- bounded by max_outputs.
		e := UtxoEntry{Value: out.Value, Type: out.Type.Clone(), Height: height, Coinbase: coinbase}
		if err := v.Add(op, e); err != nil {
			return err
		}
	}
	return nil
}

// Spent returns the staged removals in outpoint order.
func (v *UtxoView) Spent() []OutPoint {
	out := make([]OutPoint, 0, len(v.removed))
	for op := range v.removed {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return lessOutPoint(out[i], out[j]) })
	return out
}

// Created returns the staged insertions in outpoint order.
func (v *UtxoView) Created() []CreatedUtxo {
	out := make([]CreatedUtxo, 0, len(v.added))
	for op, e := range v.added {
		out = append(out, CreatedUtxo{OutPoint: op, Entry: e})
	}
	sort.Slice(out, func(i, j int) bool { return lessOutPoint(out[i].OutPoint, out[j].OutPoint) })
	return out
}

// ApplyTo writes the staged changes into an in-memory set.
func (v *UtxoView) ApplyTo(set UtxoSet) {
	for op := range v.removed {
		delete(set, op)
	}
	for op, e := range v.added {
		set[op] = e
	}
}

func lessOutPoint(a, b OutPoint) bool {
	if c := bytes.Compare(a.TxID[:], b.TxID[:]); c != 0 {
		return c < 0
	}
	return a.Vout < b.Vout
}
