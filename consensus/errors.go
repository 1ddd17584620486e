package consensus

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	TX_ERR_PARSE                 ErrorCode = "TX_ERR_PARSE"
	TX_ERR_TOO_LARGE             ErrorCode = "TX_ERR_TOO_LARGE"
	TX_ERR_COUNT_LIMIT           ErrorCode = "TX_ERR_COUNT_LIMIT"
	TX_ERR_VALUE_RANGE           ErrorCode = "TX_ERR_VALUE_RANGE"
	TX_ERR_DUST                  ErrorCode = "TX_ERR_DUST"
	TX_ERR_MALFORMED             ErrorCode = "TX_ERR_MALFORMED"
	TX_ERR_MISSING_UTXO          ErrorCode = "TX_ERR_MISSING_UTXO"
	TX_ERR_INSUFFICIENT_FUNDS    ErrorCode = "TX_ERR_INSUFFICIENT_FUNDS"
	TX_ERR_SIG_INVALID           ErrorCode = "TX_ERR_SIG_INVALID"
	TX_ERR_CANCEL_OUTSIDE_WINDOW ErrorCode = "TX_ERR_CANCEL_OUTSIDE_WINDOW"
	TX_ERR_REVSTOP_MISUSE        ErrorCode = "TX_ERR_REVSTOP_MISUSE"
	TX_ERR_COINBASE_IMMATURE     ErrorCode = "TX_ERR_COINBASE_IMMATURE"
	TX_ERR_FEE_TOO_LOW           ErrorCode = "TX_ERR_FEE_TOO_LOW"
	TX_ERR_DUPLICATE_OUTPUT      ErrorCode = "TX_ERR_DUPLICATE_OUTPUT"

	BLOCK_ERR_PARSE             ErrorCode = "BLOCK_ERR_PARSE"
	BLOCK_ERR_HASH_INVALID      ErrorCode = "BLOCK_ERR_HASH_INVALID"
	BLOCK_ERR_TIMESTAMP_INVALID ErrorCode = "BLOCK_ERR_TIMESTAMP_INVALID"
	BLOCK_ERR_POW_INVALID       ErrorCode = "BLOCK_ERR_POW_INVALID"
	BLOCK_ERR_TARGET_INVALID    ErrorCode = "BLOCK_ERR_TARGET_INVALID"
	BLOCK_ERR_MERKLE_INVALID    ErrorCode = "BLOCK_ERR_MERKLE_INVALID"
	BLOCK_ERR_COINBASE_INVALID  ErrorCode = "BLOCK_ERR_COINBASE_INVALID"
	BLOCK_ERR_SUBSIDY_EXCEEDED  ErrorCode = "BLOCK_ERR_SUBSIDY_EXCEEDED"

	MEMPOOL_ERR_DUPLICATE ErrorCode = "MEMPOOL_ERR_DUPLICATE"
	MEMPOOL_ERR_COINBASE  ErrorCode = "MEMPOOL_ERR_COINBASE"
	MEMPOOL_ERR_FULL      ErrorCode = "MEMPOOL_ERR_FULL"
)

type TxError struct {
	Code ErrorCode
	Msg  string
}

func (e *TxError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func txerr(code ErrorCode, msg string) error {
	return &TxError{Code: code, Msg: msg}
}

func txerrf(code ErrorCode, format string, args ...any) error {
	return &TxError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// NewError builds a coded rejection. Packages outside consensus (mempool)
// use it to report their own codes through the same type.
func NewError(code ErrorCode, msg string) error {
	return txerr(code, msg)
}

// CodeOf extracts the rejection code from err, looking through wrapping.
// It returns "" for errors that are not consensus rejections (for example
// storage failures).
func CodeOf(err error) ErrorCode {
	var te *TxError
	if errors.As(err, &te) && te != nil {
		return te.Code
	}
	return ""
}

// IsRejection reports whether err is a consensus or policy rejection as
// opposed to an operational failure.
func IsRejection(err error) bool {
	return CodeOf(err) != ""
}
