package chain

// Transaction type codes as they appear on the wire.
const (
	TypeTransfer          = 0x101
	TypeMultisigSignature = 0x1002
	TypeMultisig          = 0x1004
)

// Message type codes.
const (
	MessagePlain     = 1
	MessageEncrypted = 2
)

type Hash struct {
	Data string `json:"data"`
}

type TransactionMeta struct {
	ID     int64 `json:"id"`
	Height int64 `json:"height"`
	Hash   Hash  `json:"hash"`
	// InnerHash is set on multisig signature aggregates and identifies the
	// wrapped transfer.
	InnerHash Hash `json:"innerHash"`
}

type Message struct {
	Type    int    `json:"type"`
	Payload string `json:"payload"`
}

type MosaicID struct {
	NamespaceID string `json:"namespaceId"`
	Name        string `json:"name"`
}

// FQN returns the fully qualified namespace:name of the mosaic.
func (m MosaicID) FQN() string {
	return m.NamespaceID + ":" + m.Name
}

type Mosaic struct {
	MosaicID MosaicID `json:"mosaicId"`
	Quantity int64    `json:"quantity"`
}

// Transaction is the content half of a raw record. Two shapes exist: a plain
// transfer, or a multisig envelope nesting the real transfer under OtherTrans.
type Transaction struct {
	Type       int          `json:"type"`
	TimeStamp  int64        `json:"timeStamp"`
	Amount     int64        `json:"amount"`
	Fee        int64        `json:"fee"`
	Recipient  string       `json:"recipient,omitempty"`
	Signer     string       `json:"signer,omitempty"`
	Message    *Message     `json:"message,omitempty"`
	Mosaics    []Mosaic     `json:"mosaics,omitempty"`
	OtherTrans *Transaction `json:"otherTrans,omitempty"`
}

// Content resolves the real transfer: the inner transaction of a multisig
// envelope, the transaction itself otherwise.
func (t *Transaction) Content() *Transaction {
	if t.Type == TypeMultisig && t.OtherTrans != nil {
		return t.OtherTrans
	}
	return t
}

// IsTransfer reports whether the transaction carries a transfer, directly or
// wrapped in a multisig envelope.
func (t *Transaction) IsTransfer() bool {
	switch t.Type {
	case TypeTransfer:
		return true
	case TypeMultisig:
		return t.OtherTrans != nil && t.OtherTrans.Type == TypeTransfer
	}
	return false
}

// TransactionRecord is a raw transaction-with-metadata record as returned by
// the gateway. Read-only input to the decoder, never mutated.
type TransactionRecord struct {
	Meta        TransactionMeta `json:"meta"`
	Transaction Transaction     `json:"transaction"`
}
