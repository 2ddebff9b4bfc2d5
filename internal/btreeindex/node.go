package btreeindex

import (
	"github.com/relcore/engine/internal/alloc"
	"github.com/relcore/engine/internal/codec"
	"github.com/relcore/engine/internal/relerr"
)

const keySize = codec.Size16

// node is the in-memory form of a serialized B-tree node (spec.md
// §4.9: "serializing a node as {type_tag, key_count, keys[], children[]
// or buckets[], next_leaf}").
//
// Internal node: len(Children) == len(Keys)+1, Buckets is nil.
// Leaf node: len(Buckets) == len(Keys), Children is nil, NextLeaf
// chains to the next leaf in key order.
type node struct {
	IsLeaf   bool
	Keys     [][]byte
	Children []alloc.SlotPtr
	Buckets  []alloc.SlotPtr
	NextLeaf alloc.SlotPtr
}

func encodeNode(n node) []byte {
	var out []byte
	tag := byte(0)
	if n.IsLeaf {
		tag = 1
	}
	out = append(out, tag)
	out = append(out, codec.EncodeUint32(uint32(len(n.Keys)))...)
	for _, k := range n.Keys {
		enc, err := codec.EncodeBytes(keySize, k)
		if err != nil {
			panic(relerr.Wrap(relerr.Codec, "btreeindex.encodeNode", err))
		}
		out = append(out, enc...)
	}
	if n.IsLeaf {
		for _, b := range n.Buckets {
			out = append(out, ptrBytes(b)...)
		}
		out = append(out, ptrBytes(n.NextLeaf)...)
	} else {
		for _, c := range n.Children {
			out = append(out, ptrBytes(c)...)
		}
	}
	return out
}

func decodeNode(buf []byte) (node, error) {
	if len(buf) < 5 {
		return node{}, relerr.New(relerr.Codec, "btreeindex.decodeNode", "truncated node header")
	}
	isLeaf := buf[0] == 1
	count, err := codec.DecodeUint32(buf[1:5])
	if err != nil {
		return node{}, relerr.Wrap(relerr.Codec, "btreeindex.decodeNode", err)
	}
	cur := buf[5:]
	keys := make([][]byte, count)
	for i := uint32(0); i < count; i++ {
		k, rest, err := codec.DecodeBytesConsume(cur, keySize)
		if err != nil {
			return node{}, relerr.Wrap(relerr.Codec, "btreeindex.decodeNode", err)
		}
		keys[i] = k
		cur = rest
	}

	n := node{IsLeaf: isLeaf, Keys: keys}
	if isLeaf {
		buckets := make([]alloc.SlotPtr, count)
		for i := uint32(0); i < count; i++ {
			p, rest, err := consumePtr(cur)
			if err != nil {
				return node{}, err
			}
			buckets[i] = p
			cur = rest
		}
		next, rest, err := consumePtr(cur)
		if err != nil {
			return node{}, err
		}
		cur = rest
		if len(cur) != 0 {
			return node{}, relerr.New(relerr.Codec, "btreeindex.decodeNode", "trailing bytes after leaf node")
		}
		n.Buckets = buckets
		n.NextLeaf = next
	} else {
		children := make([]alloc.SlotPtr, count+1)
		for i := uint32(0); i < count+1; i++ {
			p, rest, err := consumePtr(cur)
			if err != nil {
				return node{}, err
			}
			children[i] = p
			cur = rest
		}
		if len(cur) != 0 {
			return node{}, relerr.New(relerr.Codec, "btreeindex.decodeNode", "trailing bytes after internal node")
		}
		n.Children = children
	}
	return n, nil
}

func ptrBytes(p alloc.SlotPtr) []byte {
	buf := make([]byte, alloc.ByteSize)
	p.PutBytes(buf)
	return buf
}

func consumePtr(buf []byte) (alloc.SlotPtr, []byte, error) {
	if len(buf) < alloc.ByteSize {
		return alloc.Null, nil, relerr.New(relerr.Codec, "btreeindex.consumePtr", "truncated pointer")
	}
	return alloc.SlotPtrFromBytes(buf[:alloc.ByteSize]), buf[alloc.ByteSize:], nil
}
