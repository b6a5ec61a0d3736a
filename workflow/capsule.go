package workflow

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/weavemesh/weave/ipld"
)

// CapsuleTag names the entity wrapped by a capsule (spec.md §4.5).
type CapsuleTag string

const (
	CapsuleReceipt  CapsuleTag = "receipt"
	CapsuleWorkflow CapsuleTag = "workflow"
)

// CapsuleCidMismatch is returned by DecodeCapsule when the contained
// entity's CID does not equal the CID the capsule was retrieved under.
type CapsuleCidMismatch struct {
	Want cid.Cid
	Got  cid.Cid
}

func (e *CapsuleCidMismatch) Error() string {
	return fmt.Sprintf("workflow: capsule cid mismatch: want %s got %s", e.Want, e.Got)
}

// DecodedRecord is the result of successfully decoding and CID-verifying a
// capsule's payload.
type DecodedRecord struct {
	Tag     CapsuleTag
	Receipt *Receipt
	Info    *Info
}

// EncodeReceiptCapsule wraps r as a capsule: a single-key map { "receipt": r }.
func EncodeReceiptCapsule(r Receipt) ([]byte, error) {
	return ipld.Encode(ipld.Map(ipld.MapEntry{Key: string(CapsuleReceipt), Value: r.ToValue()}))
}

// EncodeWorkflowCapsule wraps info as a capsule: a single-key map
// { "workflow": info }.
func EncodeWorkflowCapsule(info *Info) ([]byte, error) {
	return ipld.Encode(ipld.Map(ipld.MapEntry{Key: string(CapsuleWorkflow), Value: info.ToValue()}))
}

// DecodeCapsule decodes bytes as a capsule and verifies that the wrapped
// entity's CID equals want (spec.md §4.5).
func DecodeCapsule(want cid.Cid, data []byte) (DecodedRecord, error) {
	v, err := ipld.Decode(data)
	if err != nil {
		return DecodedRecord{}, fmt.Errorf("workflow: decode capsule: %w", err)
	}
	entries, ok := v.AsMap()
	if !ok || len(entries) != 1 {
		return DecodedRecord{}, fmt.Errorf("workflow: capsule is not a single-key map")
	}
	entry := entries[0]
	switch CapsuleTag(entry.Key) {
	case CapsuleReceipt:
		r, err := ReceiptFromValue(entry.Value)
		if err != nil {
			return DecodedRecord{}, fmt.Errorf("workflow: capsule receipt: %w", err)
		}
		got, err := r.CID()
		if err != nil {
			return DecodedRecord{}, fmt.Errorf("workflow: capsule receipt cid: %w", err)
		}
		if !got.Equals(want) {
			return DecodedRecord{}, &CapsuleCidMismatch{Want: want, Got: got}
		}
		return DecodedRecord{Tag: CapsuleReceipt, Receipt: &r}, nil
	case CapsuleWorkflow:
		info, err := InfoFromValue(entry.Value)
		if err != nil {
			return DecodedRecord{}, fmt.Errorf("workflow: capsule workflow: %w", err)
		}
		if !info.CID.Equals(want) {
			return DecodedRecord{}, &CapsuleCidMismatch{Want: want, Got: info.CID}
		}
		return DecodedRecord{Tag: CapsuleWorkflow, Info: info}, nil
	default:
		return DecodedRecord{}, fmt.Errorf("workflow: unknown capsule tag %q", entry.Key)
	}
}

// DecodeReceiptCapsuleFromDHT decodes data as a receipt capsule fetched from
// the DHT under instructionCID. A receipt record is stored keyed by the
// instruction it ran (spec.md §4.4), not by its own CID — r.CID() is the
// hash of {ran,out,meta,prf} and is never equal to that key. The carried
// receipt's own CID is computed, so a receipt that cannot be encoded is
// rejected, but it is not compared with any expected CID. The only key check
// is the record's instruction linkage: r.Ran must equal instructionCID.
func DecodeReceiptCapsuleFromDHT(instructionCID cid.Cid, data []byte) (DecodedRecord, error) {
	v, err := ipld.Decode(data)
	if err != nil {
		return DecodedRecord{}, fmt.Errorf("workflow: decode capsule: %w", err)
	}
	entries, ok := v.AsMap()
	if !ok || len(entries) != 1 {
		return DecodedRecord{}, fmt.Errorf("workflow: capsule is not a single-key map")
	}
	entry := entries[0]
	if CapsuleTag(entry.Key) != CapsuleReceipt {
		return DecodedRecord{}, fmt.Errorf("workflow: expected receipt capsule, got %q", entry.Key)
	}
	r, err := ReceiptFromValue(entry.Value)
	if err != nil {
		return DecodedRecord{}, fmt.Errorf("workflow: capsule receipt: %w", err)
	}
	if _, err := r.CID(); err != nil {
		return DecodedRecord{}, fmt.Errorf("workflow: capsule receipt cid: %w", err)
	}
	if !r.Ran.Equals(instructionCID) {
		return DecodedRecord{}, &CapsuleCidMismatch{Want: instructionCID, Got: r.Ran}
	}
	return DecodedRecord{Tag: CapsuleReceipt, Receipt: &r}, nil
}
