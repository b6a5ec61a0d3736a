package ipld

import (
	"fmt"

	"github.com/ipfs/go-cid"
	mc "github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"
)

// HashFunc is the fixed collision-resistant hash used to derive CIDs
// (spec.md §4.1: "a 256-bit cryptographic digest").
const HashFunc = multihash.SHA2_256

// ContentCodec is the codec tag baked into every CID minted by this
// package: the canonical binary encoding implemented in codec.go.
const ContentCodec = mc.DagCbor

// ComputeCID returns cid(v) = hash_tag || codec_tag || H(encode(v)).
// A CIDv1 already carries exactly that shape: the multicodec prefix names
// the content codec (dag-cbor) and the multihash prefix names the hash
// function, wrapping H(encode(v)). Computing cid(v) for the same v on any
// architecture or process yields byte-identical output, since Encode is
// deterministic and multihash/CID are plain byte encodings.
func ComputeCID(v Value) (cid.Cid, error) {
	data, err := Encode(v)
	if err != nil {
		return cid.Undef, fmt.Errorf("ipld: compute cid: %w", err)
	}
	return cidOfBytes(data)
}

func cidOfBytes(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, HashFunc, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("ipld: hash: %w", err)
	}
	return cid.NewCidV1(uint64(ContentCodec), mh), nil
}

// VerifyCID reports whether c is the correct CID for v, re-deriving it and
// comparing. Used by capsule decoding (spec.md §4.5) to detect tampered or
// mismatched wire records.
func VerifyCID(c cid.Cid, v Value) (bool, error) {
	got, err := ComputeCID(v)
	if err != nil {
		return false, err
	}
	return got.Equals(c), nil
}
