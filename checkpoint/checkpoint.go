// Package checkpoint signs tree heads as COSE Sign1 messages.
//
// A checkpoint commits to the newest root of a tree together with the
// counters that place it. The root is removed from the published payload
// after signing, so a checkpoint can only be verified by someone who reads
// the root from the tree itself.
package checkpoint

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"time"

	dtcbor "github.com/datatrails/go-datatrails-common/cbor"
	dtcose "github.com/datatrails/go-datatrails-common/cose"
	"github.com/forestrie/go-batchedmerkle/batched"
	"github.com/veraison/go-cose"
)

var ErrRootNotDetached = errors.New("checkpoint: published payload carries a root")

// TreeHead is the signed state of a batched tree.
type TreeHead struct {
	TreeID         []byte `cbor:"1,keyasint"`
	TreeType       uint64 `cbor:"2,keyasint"`
	NextIndex      uint64 `cbor:"3,keyasint"`
	SequenceNumber uint64 `cbor:"4,keyasint"`
	Root           []byte `cbor:"5,keyasint,omitempty"`
	// RootIndex is the root history slot holding Root.
	RootIndex uint64 `cbor:"6,keyasint"`
	// Timestamp is the unix time (milliseconds) read at the time the head
	// was signed. Including it allows for the same root to be re-signed.
	Timestamp int64 `cbor:"7,keyasint"`
}

// HeadFromStatus takes the newest root of a tree as its head.
func HeadFromStatus(s batched.TreeStatus, now time.Time) TreeHead {
	h := TreeHead{
		TreeID:         append([]byte(nil), s.ID[:]...),
		TreeType:       uint64(s.TreeType),
		NextIndex:      s.NextIndex,
		SequenceNumber: s.SequenceNumber,
		RootIndex:      uint64(s.LastRootIndex),
		Timestamp:      now.UnixMilli(),
	}
	if n := len(s.Roots); n > 0 {
		h.Root = append([]byte(nil), s.Roots[n-1][:]...)
	} else {
		h.Root = make([]byte, batched.HashBytes)
	}
	return h
}

// Signer produces checkpoints. It does not check that a head extends the
// previously signed one; callers do that before publishing.
type Signer struct {
	issuer    string
	cborCodec dtcbor.CBORCodec
}

func NewSigner(issuer string, cborCodec dtcbor.CBORCodec) Signer {
	return Signer{issuer: issuer, cborCodec: cborCodec}
}

func NewCodec() (dtcbor.CBORCodec, error) {
	codec, err := dtcbor.NewCBORCodec(
		dtcbor.NewDeterministicEncOpts(),
		dtcbor.NewDeterministicDecOpts(), // unsigned int decodes to uint64
	)
	if err != nil {
		return dtcbor.CBORCodec{}, err
	}
	return codec, nil
}

// Sign1 signs head and returns the encoded message with the root detached.
func (s Signer) Sign1(
	coseSigner cose.Signer, keyIdentifier string, publicKey *ecdsa.PublicKey,
	subject string, head TreeHead, external []byte) ([]byte, error) {

	payload, err := s.cborCodec.MarshalCBOR(head)
	if err != nil {
		return nil, err
	}
	msg := cose.Sign1Message{
		Headers: cose.Headers{
			Protected: cose.ProtectedHeader{
				dtcose.HeaderLabelCWTClaims: dtcose.NewCNFClaim(
					s.issuer, subject, keyIdentifier, coseSigner.Algorithm(), *publicKey),
			},
		},
		Payload: payload,
	}
	if err := msg.Sign(rand.Reader, external, coseSigner); err != nil {
		return nil, err
	}

	head.Root = nil
	msg.Payload, err = s.cborCodec.MarshalCBOR(head)
	if err != nil {
		return nil, err
	}
	return msg.MarshalCBOR()
}

// Decode reads the unverified head of a checkpoint. Its Root is empty.
func Decode(codec dtcbor.CBORCodec, msg []byte) (*dtcose.CoseSign1Message, TreeHead, error) {
	signed, err := dtcose.NewCoseSign1MessageFromCBOR(
		msg, dtcose.WithDecOptions(dtcbor.NewDeterministicDecOpts()))
	if err != nil {
		return nil, TreeHead{}, err
	}
	var head TreeHead
	if err := codec.UnmarshalInto(signed.Payload, &head); err != nil {
		return nil, TreeHead{}, err
	}
	if len(head.Root) != 0 {
		return nil, TreeHead{}, ErrRootNotDetached
	}
	return signed, head, nil
}

// Verify checks signed against head, which must carry the root read from
// the tree at head.RootIndex.
func Verify(
	codec dtcbor.CBORCodec, signed *dtcose.CoseSign1Message, head TreeHead, external []byte) error {

	var err error
	signed.Payload, err = codec.MarshalCBOR(head)
	if err != nil {
		return err
	}
	return signed.VerifyWithProvider(dtcose.NewCWTPublicKeyProvider(signed), external)
}
