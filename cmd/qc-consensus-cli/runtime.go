package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"quantumcoin.dev/node/consensus"
	"quantumcoin.dev/node/crypto"
	"quantumcoin.dev/node/node"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type UtxoJSON struct {
	Txid      string `json:"txid"`
	Vout      uint32 `json:"vout"`
	Value     int64  `json:"value"`
	Kind      uint8  `json:"kind"`
	PubkeyHex string `json:"pubkey_hex"`
	Window    uint32 `json:"window_blocks,omitempty"`
	Height    uint64 `json:"height"`
	Coinbase  bool   `json:"coinbase,omitempty"`
}

type Request struct {
	Op        string     `json:"op"`
	Network   string     `json:"network,omitempty"`
	TxHex     string     `json:"tx_hex,omitempty"`
	TxsHex    []string   `json:"txs_hex,omitempty"`
	HeaderHex string     `json:"header_hex,omitempty"`
	Index     int        `json:"index,omitempty"`
	Bits      uint32     `json:"bits,omitempty"`
	Target    string     `json:"target,omitempty"`
	Height    uint64     `json:"height,omitempty"`
	PubkeyHex string     `json:"pubkey_hex,omitempty"`
	Coinbase  bool       `json:"coinbase,omitempty"`
	Utxos     []UtxoJSON `json:"utxos,omitempty"`
	// retarget inputs
	ActualTimespan int64 `json:"actual_timespan,omitempty"`
	TargetTimespan int64 `json:"target_timespan,omitempty"`
}

type Response struct {
	Ok         bool     `json:"ok"`
	Err        string   `json:"err,omitempty"`
	TxidHex    string   `json:"txid,omitempty"`
	DigestHex  string   `json:"digest,omitempty"`
	MerkleHex  string   `json:"merkle_root,omitempty"`
	Proof      []string `json:"proof,omitempty"`
	BlockHash  string   `json:"block_hash,omitempty"`
	Consumed   int      `json:"consumed,omitempty"`
	Size       int      `json:"size,omitempty"`
	Fee        int64    `json:"fee,omitempty"`
	Target     string   `json:"target,omitempty"`
	Bits       uint32   `json:"bits,omitempty"`
	Subsidy    int64    `json:"subsidy,omitempty"`
	Address    string   `json:"address,omitempty"`
	ProofValid bool     `json:"proof_valid,omitempty"`
}

func writeResp(w io.Writer, resp Response) {
	_ = json.NewEncoder(w).Encode(resp)
}

func parseHexU256(s string) (*big.Int, error) {
	stripped := strings.TrimPrefix(strings.TrimSpace(strings.ToLower(s)), "0x")
	if stripped == "" {
		return nil, fmt.Errorf("empty target")
	}
	v, ok := new(big.Int).SetString(stripped, 16)
	if !ok || v.Sign() < 0 || v.BitLen() > 256 {
		return nil, fmt.Errorf("bad target")
	}
	return v, nil
}

func target32Hex(t *big.Int) string {
	var out [32]byte
	t.FillBytes(out[:])
	return hex.EncodeToString(out[:])
}

func parseTxs(items []string) ([]consensus.Tx, error) {
	txs := make([]consensus.Tx, 0, len(items))
	for _, h := range items {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("bad hex")
		}
		tx, err := consensus.ParseTxBytes(raw)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, nil
}

func buildUtxoSet(items []UtxoJSON) (consensus.UtxoSet, error) {
	set := make(consensus.UtxoSet, len(items))
	for _, u := range items {
		id, err := consensus.ParseHash32(u.Txid)
		if err != nil {
			return nil, err
		}
		pk, err := hex.DecodeString(u.PubkeyHex)
		if err != nil {
			return nil, fmt.Errorf("bad pubkey_hex")
		}
		var typ consensus.OutputType
		switch consensus.OutputKind(u.Kind) {
		case consensus.KindP2PQ:
			typ = consensus.P2PQ(pk)
		case consensus.KindP2PQRevocable:
			typ = consensus.P2PQRevocable(pk, u.Window)
		default:
			return nil, fmt.Errorf("unknown output kind %d", u.Kind)
		}
		set[consensus.OutPoint{TxID: id, Vout: u.Vout}] = consensus.UtxoEntry{
			Value:    u.Value,
			Type:     typ,
			Height:   u.Height,
			Coinbase: u.Coinbase,
		}
	}
	return set, nil
}

func chainSpec(network string) (*consensus.ChainSpec, error) {
	if network == "" {
		network = "mainnet"
	}
	return node.BuiltinChainSpec(network)
}

func serve(r io.Reader, w io.Writer) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		writeResp(w, Response{Ok: false, Err: fmt.Sprintf("bad request: %v", err)})
		return
	}
	writeResp(w, handle(req))
}

func fail(err error) Response {
	if code := consensus.CodeOf(err); code != "" {
		return Response{Err: string(code)}
	}
	return Response{Err: err.Error()}
}

func handle(req Request) Response {
	switch req.Op {
	case "parse_tx":
		raw, err := hex.DecodeString(req.TxHex)
		if err != nil {
			return Response{Err: "bad hex"}
		}
		tx, n, err := consensus.ParseTx(raw)
		if err != nil {
			return fail(err)
		}
		return Response{Ok: true, TxidHex: tx.TxID().String(), Consumed: n, Size: tx.SerializeSize()}

	case "sighash":
		raw, err := hex.DecodeString(req.TxHex)
		if err != nil {
			return Response{Err: "bad hex"}
		}
		tx, err := consensus.ParseTxBytes(raw)
		if err != nil {
			return fail(err)
		}
		return Response{Ok: true, DigestHex: consensus.Sighash(tx).String()}

	case "merkle_root":
		txs, err := parseTxs(req.TxsHex)
		if err != nil {
			return fail(err)
		}
		return Response{Ok: true, MerkleHex: consensus.MerkleRoot(txs).String()}

	case "merkle_proof":
		txs, err := parseTxs(req.TxsHex)
		if err != nil {
			return fail(err)
		}
		leaves := make([]consensus.Hash32, len(txs))
		for i := range txs {
			leaves[i] = consensus.MerkleLeaf(&txs[i])
		}
		tree := consensus.NewMerkleTree(leaves)
		proof, ok := tree.Proof(req.Index)
		if !ok {
			return Response{Err: "index out of range"}
		}
		out := make([]string, len(proof))
		for i, h := range proof {
			out[i] = h.String()
		}
		return Response{
			Ok:         true,
			MerkleHex:  tree.Root().String(),
			Proof:      out,
			ProofValid: consensus.VerifyMerkleProof(leaves[req.Index], proof, req.Index, tree.Root()),
		}

	case "block_hash", "pow_check":
		raw, err := hex.DecodeString(req.HeaderHex)
		if err != nil {
			return Response{Err: "bad hex"}
		}
		header, err := consensus.ParseBlockHeaderBytes(raw)
		if err != nil {
			return fail(err)
		}
		hash := consensus.BlockHash(header)
		if req.Op == "pow_check" && !consensus.CheckProofOfWork(hash, consensus.BitsToTarget(header.Bits)) {
			return Response{Err: string(consensus.BLOCK_ERR_POW_INVALID), BlockHash: hash.String()}
		}
		return Response{Ok: true, BlockHash: hash.String()}

	case "bits_to_target":
		return Response{Ok: true, Target: target32Hex(consensus.BitsToTarget(req.Bits))}

	case "target_to_bits":
		t, err := parseHexU256(req.Target)
		if err != nil {
			return fail(err)
		}
		return Response{Ok: true, Bits: consensus.TargetToBits(t)}

	case "retarget":
		t, err := parseHexU256(req.Target)
		if err != nil {
			return fail(err)
		}
		next := consensus.NextDifficultyTarget(t, req.ActualTimespan, req.TargetTimespan)
		return Response{Ok: true, Target: target32Hex(next), Bits: consensus.TargetToBits(next)}

	case "block_subsidy":
		spec, err := chainSpec(req.Network)
		if err != nil {
			return fail(err)
		}
		return Response{Ok: true, Subsidy: consensus.BlockSubsidy(spec, req.Height)}

	case "address":
		spec, err := chainSpec(req.Network)
		if err != nil {
			return fail(err)
		}
		pk, err := hex.DecodeString(req.PubkeyHex)
		if err != nil {
			return Response{Err: "bad hex"}
		}
		addr, err := crypto.AddressFromPubkey(spec.Network.AddressPrefix, pk)
		if err != nil {
			return fail(err)
		}
		return Response{Ok: true, Address: addr}

	case "validate_tx":
		spec, err := chainSpec(req.Network)
		if err != nil {
			return fail(err)
		}
		raw, err := hex.DecodeString(req.TxHex)
		if err != nil {
			return Response{Err: "bad hex"}
		}
		tx, err := consensus.ParseTxBytes(raw)
		if err != nil {
			return fail(err)
		}
		utxos, err := buildUtxoSet(req.Utxos)
		if err != nil {
			return fail(err)
		}
		s, err := consensus.ValidateTx(spec, req.Height, tx, req.Coinbase, utxos)
		if err != nil {
			return fail(err)
		}
		if !req.Coinbase {
			if err := consensus.CheckFeePolicy(spec, s); err != nil {
				return fail(err)
			}
		}
		return Response{Ok: true, TxidHex: s.TxID.String(), Size: s.Size, Fee: s.Fee}

	default:
		return Response{Err: "unknown op"}
	}
}
