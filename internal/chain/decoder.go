package chain

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// chainEpoch is the genesis reference all on-chain timestamps are relative to.
var chainEpoch = time.Date(2015, time.March, 29, 0, 6, 25, 0, time.UTC)

// BaseCurrencyFQN is the fully qualified name of the base currency mosaic.
const BaseCurrencyFQN = "nem:xem"

// ExtractHash returns the metadata hash of a record. With preferInner set,
// the inner hash of a multisig signature aggregate takes precedence when
// present. An empty result indicates malformed input; callers must treat the
// record as unmatchable.
func ExtractHash(r *TransactionRecord, preferInner bool) string {
	if preferInner && r.Meta.InnerHash.Data != "" {
		return r.Meta.InnerHash.Data
	}
	return r.Meta.Hash.Data
}

// ExtractID returns the chain-assigned sequential identifier used as the
// pagination cursor.
func ExtractID(r *TransactionRecord) int64 {
	return r.Meta.ID
}

// ChainTime returns the raw chain-relative timestamp of a record.
func ChainTime(r *TransactionRecord) int64 {
	return r.Transaction.TimeStamp
}

// Timestamp converts the chain-relative timestamp to an absolute point in time.
func Timestamp(r *TransactionRecord) time.Time {
	return chainEpoch.Add(time.Duration(r.Transaction.TimeStamp) * time.Second)
}

// ExtractMessage resolves the transfer payload of a record, unwrapping one
// level of multisig nesting, and hex-decodes it to plain text. Records
// without a message payload yield an empty string.
func ExtractMessage(r *TransactionRecord) (string, error) {
	content := r.Transaction.Content()
	if content.Message == nil || content.Message.Payload == "" {
		return "", nil
	}
	raw, err := hex.DecodeString(content.Message.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to decode message payload: %w", err)
	}
	return string(raw), nil
}

// DecryptMessage resolves the payload like ExtractMessage and decrypts it
// with the process-wide shared secret (AES-256-CBC, IV prepended, PKCS#7
// padding). Decryption failures are returned, never swallowed: treating
// undecryptable ciphertext as "no message" would misclassify a valid payment.
func DecryptMessage(r *TransactionRecord, key []byte) (string, error) {
	text, err := ExtractMessage(r)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", nil
	}
	plain, err := decryptCBC([]byte(text), key)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt message: %w", err)
	}
	return string(plain), nil
}

func decryptCBC(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("invalid ciphertext length %d", len(data))
	}
	iv, ciphertext := data[:aes.BlockSize], data[aes.BlockSize:]
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	return pkcs7Unpad(plain)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	if !bytes.Equal(data[len(data)-n:], bytes.Repeat([]byte{byte(n)}, n)) {
		return nil, fmt.Errorf("invalid padding")
	}
	return data[:len(data)-n], nil
}

// ExtractAmount resolves the effective transfer amount of a record in
// smallest units of the requested mosaic. The wire format overloads the
// numeric amount field: with a mosaic list attached it is a multiplier, and
// without one it is the base currency quantity itself. This is the single
// place that resolves the ambiguity; callers never read the raw field.
func ExtractAmount(r *TransactionRecord, mosaicFQN string, divisibility int) int64 {
	content := r.Transaction.Content()
	if len(content.Mosaics) > 0 {
		return ExtractMosaic(&r.Transaction, mosaicFQN, divisibility).Quantity
	}
	if strings.EqualFold(mosaicFQN, BaseCurrencyFQN) {
		return content.Amount
	}
	return 0
}
