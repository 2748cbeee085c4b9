package bundlr

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
)

// ANS-104 constants for ed25519 (Solana) owners.
const (
	signatureTypeEd25519 = 2
	signatureLength      = 64
	ownerLength          = 32
	anchorLength         = 32
)

// Tag is a name/value pair attached to a data item.
type Tag struct {
	Name  string
	Value string
}

// MessageSigner signs data items with the wallet key.
type MessageSigner interface {
	PublicKey() (solana.PublicKey, error)
	SignMessage(msg []byte) (solana.Signature, error)
}

// DataItem is a signed ANS-104 data item.
type DataItem struct {
	Owner     solana.PublicKey
	Anchor    []byte
	Tags      []Tag
	Data      []byte
	Signature solana.Signature
}

// NewDataItem builds and signs a data item with a random anchor.
func NewDataItem(signer MessageSigner, data []byte, tags []Tag) (*DataItem, error) {
	owner, err := signer.PublicKey()
	if err != nil {
		return nil, err
	}
	anchor := make([]byte, anchorLength)
	if _, err := rand.Read(anchor); err != nil {
		return nil, fmt.Errorf("cannot generate anchor: %w", err)
	}
	item := &DataItem{
		Owner:  owner,
		Anchor: anchor,
		Tags:   tags,
		Data:   data,
	}
	sig, err := signer.SignMessage(item.SignatureData())
	if err != nil {
		return nil, fmt.Errorf("cannot sign data item: %w", err)
	}
	item.Signature = sig
	return item, nil
}

// ID is the base64url encoded SHA-256 of the signature.
func (item *DataItem) ID() string {
	id := sha256.Sum256(item.Signature[:])
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// SignatureData returns the message signed by the owner.
func (item *DataItem) SignatureData() []byte {
	return deepHash([]interface{}{
		[]byte("dataitem"),
		[]byte("1"),
		[]byte(strconv.Itoa(signatureTypeEd25519)),
		item.Owner[:],
		[]byte{},
		item.Anchor,
		encodeTags(item.Tags),
		item.Data,
	})
}

// Verify checks the signature against the owner.
func (item *DataItem) Verify() bool {
	return item.Signature.Verify(item.Owner, item.SignatureData())
}

// MarshalBinary returns the serialized data item.
func (item *DataItem) MarshalBinary() ([]byte, error) {
	if len(item.Anchor) != 0 && len(item.Anchor) != anchorLength {
		return nil, fmt.Errorf("anchor must be %d bytes, got %d", anchorLength, len(item.Anchor))
	}
	tags := encodeTags(item.Tags)

	out := make([]byte, 0, 2+signatureLength+ownerLength+2+anchorLength+16+len(tags)+len(item.Data))
	out = binary.LittleEndian.AppendUint16(out, signatureTypeEd25519)
	out = append(out, item.Signature[:]...)
	out = append(out, item.Owner[:]...)
	out = append(out, 0) // no target
	if len(item.Anchor) == 0 {
		out = append(out, 0)
	} else {
		out = append(out, 1)
		out = append(out, item.Anchor...)
	}
	out = binary.LittleEndian.AppendUint64(out, uint64(len(item.Tags)))
	out = binary.LittleEndian.AppendUint64(out, uint64(len(tags)))
	out = append(out, tags...)
	out = append(out, item.Data...)
	return out, nil
}

// encodeTags serializes tags as an Avro array of {name: bytes, value: bytes}.
func encodeTags(tags []Tag) []byte {
	if len(tags) == 0 {
		return []byte{}
	}
	out := binary.AppendVarint(nil, int64(len(tags)))
	for _, tag := range tags {
		out = binary.AppendVarint(out, int64(len(tag.Name)))
		out = append(out, tag.Name...)
		out = binary.AppendVarint(out, int64(len(tag.Value)))
		out = append(out, tag.Value...)
	}
	return append(out, 0)
}

// deepHash accepts []byte blobs and []interface{} lists of them.
func deepHash(data interface{}) []byte {
	switch v := data.(type) {
	case []byte:
		tag := sha384([]byte("blob" + strconv.Itoa(len(v))))
		return sha384(append(tag, sha384(v)...))
	case []interface{}:
		acc := sha384([]byte("list" + strconv.Itoa(len(v))))
		for _, child := range v {
			acc = sha384(append(acc, deepHash(child)...))
		}
		return acc
	}
	panic(fmt.Sprintf("deepHash: unsupported type %T", data))
}

func sha384(data []byte) []byte {
	sum := sha512.Sum384(data)
	return sum[:]
}
