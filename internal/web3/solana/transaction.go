package solana

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Hash is a recent blockhash.
type Hash [32]byte

// ParseHash decodes a base58 blockhash.
func ParseHash(s string) (Hash, error) {
	pk, err := ParsePublicKey(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid blockhash: %w", err)
	}
	return Hash(pk), nil
}

// AccountMeta references an account used by an instruction.
type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// MessageHeader counts signer and read-only accounts in AccountKeys.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references accounts by index into AccountKeys.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is a legacy transaction message.
type Message struct {
	Header          MessageHeader
	AccountKeys     []PublicKey
	RecentBlockhash Hash
	Instructions    []CompiledInstruction
}

// NewMessage compiles instructions into a legacy message with payer as the
// fee payer. Accounts are ordered writable signers, read-only signers,
// writable non-signers, then read-only non-signers, each group keeping
// first-seen order.
func NewMessage(payer PublicKey, blockhash Hash, instructions ...Instruction) (*Message, error) {
	if len(instructions) == 0 {
		return nil, errors.New("message has no instructions")
	}

	type entry struct {
		meta  AccountMeta
		order int
	}
	seen := map[PublicKey]*entry{}
	var ordered []*entry
	add := func(m AccountMeta) {
		if e, ok := seen[m.PublicKey]; ok {
			e.meta.IsSigner = e.meta.IsSigner || m.IsSigner
			e.meta.IsWritable = e.meta.IsWritable || m.IsWritable
			return
		}
		e := &entry{meta: m, order: len(ordered)}
		seen[m.PublicKey] = e
		ordered = append(ordered, e)
	}

	add(AccountMeta{PublicKey: payer, IsSigner: true, IsWritable: true})
	for _, ix := range instructions {
		for _, acc := range ix.Accounts {
			add(acc)
		}
		add(AccountMeta{PublicKey: ix.ProgramID})
	}

	var groups [4][]PublicKey
	for _, e := range ordered {
		switch m := e.meta; {
		case m.IsSigner && m.IsWritable:
			groups[0] = append(groups[0], m.PublicKey)
		case m.IsSigner:
			groups[1] = append(groups[1], m.PublicKey)
		case m.IsWritable:
			groups[2] = append(groups[2], m.PublicKey)
		default:
			groups[3] = append(groups[3], m.PublicKey)
		}
	}

	keys := make([]PublicKey, 0, len(ordered))
	for _, g := range groups {
		keys = append(keys, g...)
	}
	if len(keys) > 256 {
		return nil, fmt.Errorf("message references %d accounts, limit is 256", len(keys))
	}
	index := make(map[PublicKey]uint8, len(keys))
	for i, k := range keys {
		index[k] = uint8(i)
	}

	msg := &Message{
		Header: MessageHeader{
			NumRequiredSignatures:       uint8(len(groups[0]) + len(groups[1])),
			NumReadonlySignedAccounts:   uint8(len(groups[1])),
			NumReadonlyUnsignedAccounts: uint8(len(groups[3])),
		},
		AccountKeys:     keys,
		RecentBlockhash: blockhash,
	}
	for _, ix := range instructions {
		compiled := CompiledInstruction{ProgramIDIndex: index[ix.ProgramID], Data: ix.Data}
		for _, acc := range ix.Accounts {
			compiled.Accounts = append(compiled.Accounts, index[acc.PublicKey])
		}
		msg.Instructions = append(msg.Instructions, compiled)
	}
	return msg, nil
}

// Signers returns the accounts that must sign, in signature order.
func (m *Message) Signers() []PublicKey {
	return m.AccountKeys[:m.Header.NumRequiredSignatures]
}

// Serialize encodes the message in the legacy wire format.
func (m *Message) Serialize() []byte {
	buf := []byte{m.Header.NumRequiredSignatures, m.Header.NumReadonlySignedAccounts, m.Header.NumReadonlyUnsignedAccounts}
	buf = appendCompactU16(buf, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		buf = append(buf, k[:]...)
	}
	buf = append(buf, m.RecentBlockhash[:]...)
	buf = appendCompactU16(buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf = appendCompactU16(buf, len(ix.Accounts))
		buf = append(buf, ix.Accounts...)
		buf = appendCompactU16(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}
	return buf
}

// Transaction is a signed legacy transaction.
type Transaction struct {
	Signatures [][64]byte
	Message    *Message
}

// SignTransaction signs msg with every required signer. Extra keypairs are ignored.
func SignTransaction(msg *Message, signers ...Keypair) (*Transaction, error) {
	byKey := make(map[PublicKey]Keypair, len(signers))
	for _, s := range signers {
		byKey[s.PublicKey()] = s
	}
	payload := msg.Serialize()
	tx := &Transaction{Message: msg}
	for _, required := range msg.Signers() {
		kp, ok := byKey[required]
		if !ok {
			return nil, fmt.Errorf("missing signer %s", required)
		}
		tx.Signatures = append(tx.Signatures, kp.Sign(payload))
	}
	return tx, nil
}

// Signature returns the base58 transaction id (the fee payer signature).
func (t *Transaction) Signature() string {
	if len(t.Signatures) == 0 {
		return ""
	}
	return base58.Encode(t.Signatures[0][:])
}

// Serialize encodes signatures followed by the message.
func (t *Transaction) Serialize() []byte {
	buf := appendCompactU16(nil, len(t.Signatures))
	for _, sig := range t.Signatures {
		buf = append(buf, sig[:]...)
	}
	return append(buf, t.Message.Serialize()...)
}

// Base64 is the encoding accepted by sendTransaction.
func (t *Transaction) Base64() string {
	return base64.StdEncoding.EncodeToString(t.Serialize())
}

func appendCompactU16(buf []byte, n int) []byte {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

func appendU64(buf []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(buf, v)
}

func appendU32(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}
