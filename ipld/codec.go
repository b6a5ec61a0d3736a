package ipld

import (
	"bytes"
	"fmt"

	"github.com/ipld/go-ipld-prime/codec/dagcbor"
	"github.com/ipld/go-ipld-prime/datamodel"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/ipld/go-ipld-prime/node/basicnode"
)

// MalformedEncoding is returned by Decode when bytes do not describe a
// well-formed value of the model (spec.md §4.1).
type MalformedEncoding struct {
	Reason string
	Cause  error
}

func (e *MalformedEncoding) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed encoding: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("malformed encoding: %s", e.Reason)
}

func (e *MalformedEncoding) Unwrap() error { return e.Cause }

// Encode produces the canonical binary encoding of v. Encoding is
// deterministic: dagcbor.Encode writes map keys in dag-cbor's canonical
// order (shorter keys first, then bytewise), so two Values built from the
// same logical content always encode to the same bytes regardless of
// construction order. For keys of differing lengths that order is not plain
// lexicographic order; Encode does not re-check key order itself.
func Encode(v Value) ([]byte, error) {
	node, err := toNode(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := dagcbor.Encode(node, &buf); err != nil {
		return nil, fmt.Errorf("ipld: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode. It fails with *MalformedEncoding on any
// structural error in the value model's own shape. It does not check
// InstructionResult tags ("ok", "error", "just"); the workflow package does.
func Decode(data []byte) (Value, error) {
	nb := basicnode.Prototype.Any.NewBuilder()
	if err := dagcbor.Decode(nb, bytes.NewReader(data)); err != nil {
		return Null(), &MalformedEncoding{Reason: "invalid dag-cbor", Cause: err}
	}
	return fromNode(nb.Build())
}

// toNode converts a Value into an ipld.Node via the fluent NodeAssembler
// API, so that the dag-cbor encoder's own canonicalization (deterministic
// map key order, minimal integer width) is authoritative.
func toNode(v Value) (datamodel.Node, error) {
	nb := basicnode.Prototype.Any.NewBuilder()
	if err := assemble(nb, v); err != nil {
		return nil, err
	}
	return nb.Build(), nil
}

func assemble(na datamodel.NodeAssembler, v Value) error {
	switch v.kind {
	case KindNull:
		return na.AssignNull()
	case KindBool:
		return na.AssignBool(v.b)
	case KindInt:
		return na.AssignInt(v.i)
	case KindFloat:
		return na.AssignFloat(v.f)
	case KindString:
		return na.AssignString(v.s)
	case KindBytes:
		return na.AssignBytes(v.bytes)
	case KindList:
		la, err := na.BeginList(int64(len(v.list)))
		if err != nil {
			return err
		}
		for _, item := range v.list {
			if err := assemble(la.AssembleValue(), item); err != nil {
				return err
			}
		}
		return la.Finish()
	case KindMap:
		ma, err := na.BeginMap(int64(len(v.m)))
		if err != nil {
			return err
		}
		// v.m is already sorted lexicographically by Map's constructor; the
		// dag-cbor encoder re-sorts keys into its own canonical order.
		for _, entry := range v.m {
			ea, err := ma.AssembleEntry(entry.Key)
			if err != nil {
				return err
			}
			if err := assemble(ea, entry.Value); err != nil {
				return err
			}
		}
		return ma.Finish()
	case KindLink:
		return na.AssignLink(cidlink.Link{Cid: v.link})
	default:
		return &MalformedEncoding{Reason: fmt.Sprintf("unknown kind %d", v.kind)}
	}
}

func fromNode(n datamodel.Node) (Value, error) {
	switch n.Kind() {
	case datamodel.Kind_Null:
		return Null(), nil
	case datamodel.Kind_Bool:
		b, err := n.AsBool()
		if err != nil {
			return Null(), &MalformedEncoding{Reason: "bool", Cause: err}
		}
		return Bool(b), nil
	case datamodel.Kind_Int:
		i, err := n.AsInt()
		if err != nil {
			return Null(), &MalformedEncoding{Reason: "int", Cause: err}
		}
		return Int(i), nil
	case datamodel.Kind_Float:
		f, err := n.AsFloat()
		if err != nil {
			return Null(), &MalformedEncoding{Reason: "float", Cause: err}
		}
		return Float(f), nil
	case datamodel.Kind_String:
		s, err := n.AsString()
		if err != nil {
			return Null(), &MalformedEncoding{Reason: "string", Cause: err}
		}
		return String(s), nil
	case datamodel.Kind_Bytes:
		b, err := n.AsBytes()
		if err != nil {
			return Null(), &MalformedEncoding{Reason: "bytes", Cause: err}
		}
		return Bytes(b), nil
	case datamodel.Kind_List:
		items := make([]Value, 0, n.Length())
		it := n.ListIterator()
		for !it.Done() {
			_, cn, err := it.Next()
			if err != nil {
				return Null(), &MalformedEncoding{Reason: "list element", Cause: err}
			}
			v, err := fromNode(cn)
			if err != nil {
				return Null(), err
			}
			items = append(items, v)
		}
		return List(items...), nil
	case datamodel.Kind_Map:
		entries := make([]MapEntry, 0, n.Length())
		it := n.MapIterator()
		for !it.Done() {
			kn, vn, err := it.Next()
			if err != nil {
				return Null(), &MalformedEncoding{Reason: "map entry", Cause: err}
			}
			key, err := kn.AsString()
			if err != nil {
				return Null(), &MalformedEncoding{Reason: "map key", Cause: err}
			}
			val, err := fromNode(vn)
			if err != nil {
				return Null(), err
			}
			entries = append(entries, MapEntry{Key: key, Value: val})
		}
		return Map(entries...), nil
	case datamodel.Kind_Link:
		lnk, err := n.AsLink()
		if err != nil {
			return Null(), &MalformedEncoding{Reason: "link", Cause: err}
		}
		cl, ok := lnk.(cidlink.Link)
		if !ok {
			return Null(), &MalformedEncoding{Reason: "non-CID link"}
		}
		return Link(cl.Cid), nil
	default:
		return Null(), &MalformedEncoding{Reason: fmt.Sprintf("unsupported node kind %v", n.Kind())}
	}
}
