package btreeindex

import (
	"github.com/relcore/engine/internal/alloc"
	"github.com/relcore/engine/internal/codec"
	"github.com/relcore/engine/internal/relerr"
)

// bucketCapacity bounds how many record pointers one bucket segment
// holds before a new segment is chained (spec.md §4.9: "chaining a new
// bucket node if full"). Segments are always serialized at their full
// capacity width so appending or removing a pointer in place never
// changes the segment's byte size.
const bucketCapacity = 8

// bucketSeg is one node of a key's Bucket chain (spec.md §3: "a
// chained list of record slot pointers sharing the same key").
type bucketSeg struct {
	Records []alloc.SlotPtr // len <= bucketCapacity, in append order
	Next    alloc.SlotPtr   // continuation segment, Null if none
}

const bucketSegSize = 4 + bucketCapacity*alloc.ByteSize + alloc.ByteSize

func encodeBucket(seg bucketSeg) []byte {
	buf := make([]byte, bucketSegSize)
	copy(buf[0:4], codec.EncodeUint32(uint32(len(seg.Records))))
	off := 4
	for i := 0; i < bucketCapacity; i++ {
		if i < len(seg.Records) {
			seg.Records[i].PutBytes(buf[off : off+alloc.ByteSize])
		}
		off += alloc.ByteSize
	}
	seg.Next.PutBytes(buf[off : off+alloc.ByteSize])
	return buf
}

func decodeBucket(buf []byte) (bucketSeg, error) {
	if len(buf) != bucketSegSize {
		return bucketSeg{}, relerr.New(relerr.Codec, "btreeindex.decodeBucket", "bad bucket segment size")
	}
	count, err := codec.DecodeUint32(buf[0:4])
	if err != nil {
		return bucketSeg{}, relerr.Wrap(relerr.Codec, "btreeindex.decodeBucket", err)
	}
	records := make([]alloc.SlotPtr, count)
	off := 4
	for i := uint32(0); i < count; i++ {
		records[i] = alloc.SlotPtrFromBytes(buf[off : off+alloc.ByteSize])
		off += alloc.ByteSize
	}
	next := alloc.SlotPtrFromBytes(buf[4+bucketCapacity*alloc.ByteSize : bucketSegSize])
	return bucketSeg{Records: records, Next: next}, nil
}
