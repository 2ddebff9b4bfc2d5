package engine

import (
	"github.com/relcore/engine/internal/alloc"
	"github.com/relcore/engine/internal/codec"
	"github.com/relcore/engine/internal/relerr"
	"github.com/relcore/engine/internal/table"
)

// secondaryEntry is one non-clustered index recorded in a table
// header's catalog region (SPEC_FULL §4.14).
type secondaryEntry struct {
	ordinal uint32
	root    alloc.SlotPtr
	fanout  uint32
}

// tableHeader is the catalog region of a table file's page 0
// (SPEC_FULL §4.13/§4.14): one pointer per column descriptor, the
// clustered index root and fan-out, and zero or more secondary index
// entries, extending (not altering) the allocator's own header fields.
type tableHeader struct {
	columnPtrs      []alloc.SlotPtr
	clusteredRoot   alloc.SlotPtr
	clusteredFanout uint32
	secondary       []secondaryEntry
}

// writeTableHeader serializes hdr into th's reserved header region.
func writeTableHeader(th *table.Handle, hdr tableHeader) {
	buf := make([]byte, 0, 256)
	buf = append(buf, codec.EncodeUint16(uint16(len(hdr.columnPtrs)))...)
	for _, p := range hdr.columnPtrs {
		b := make([]byte, alloc.ByteSize)
		p.PutBytes(b)
		buf = append(buf, b...)
	}
	rootBytes := make([]byte, alloc.ByteSize)
	hdr.clusteredRoot.PutBytes(rootBytes)
	buf = append(buf, rootBytes...)
	buf = append(buf, codec.EncodeUint32(hdr.clusteredFanout)...)
	buf = append(buf, codec.EncodeUint16(uint16(len(hdr.secondary)))...)
	for _, s := range hdr.secondary {
		buf = append(buf, codec.EncodeUint32(s.ordinal)...)
		sb := make([]byte, alloc.ByteSize)
		s.root.PutBytes(sb)
		buf = append(buf, sb...)
		buf = append(buf, codec.EncodeUint32(s.fanout)...)
	}

	extra := th.HeaderExtra()
	if len(buf) > len(extra) {
		panic(relerr.New(relerr.Invariant, "engine.writeTableHeader", "table header does not fit in page 0"))
	}
	copy(extra, buf)
	th.MarkHeaderDirty()
}

// readTableHeader parses the catalog region written by writeTableHeader.
func readTableHeader(th *table.Handle) (tableHeader, error) {
	buf := th.HeaderExtra()
	var hdr tableHeader

	if len(buf) < 2 {
		return tableHeader{}, relerr.New(relerr.Codec, "engine.readTableHeader", "truncated table header")
	}
	colCount, err := codec.DecodeUint16(buf[0:2])
	if err != nil {
		return tableHeader{}, relerr.Wrap(relerr.Codec, "engine.readTableHeader", err)
	}
	off := 2
	hdr.columnPtrs = make([]alloc.SlotPtr, colCount)
	for i := 0; i < int(colCount); i++ {
		if off+alloc.ByteSize > len(buf) {
			return tableHeader{}, relerr.New(relerr.Codec, "engine.readTableHeader", "truncated column pointer")
		}
		hdr.columnPtrs[i] = alloc.SlotPtrFromBytes(buf[off : off+alloc.ByteSize])
		off += alloc.ByteSize
	}

	if off+alloc.ByteSize+4+2 > len(buf) {
		return tableHeader{}, relerr.New(relerr.Codec, "engine.readTableHeader", "truncated table header tail")
	}
	hdr.clusteredRoot = alloc.SlotPtrFromBytes(buf[off : off+alloc.ByteSize])
	off += alloc.ByteSize
	hdr.clusteredFanout, err = codec.DecodeUint32(buf[off : off+4])
	if err != nil {
		return tableHeader{}, relerr.Wrap(relerr.Codec, "engine.readTableHeader", err)
	}
	off += 4
	secCount, err := codec.DecodeUint16(buf[off : off+2])
	if err != nil {
		return tableHeader{}, relerr.Wrap(relerr.Codec, "engine.readTableHeader", err)
	}
	off += 2

	hdr.secondary = make([]secondaryEntry, secCount)
	for i := 0; i < int(secCount); i++ {
		if off+4+alloc.ByteSize+4 > len(buf) {
			return tableHeader{}, relerr.New(relerr.Codec, "engine.readTableHeader", "truncated secondary index entry")
		}
		ordinal, err := codec.DecodeUint32(buf[off : off+4])
		if err != nil {
			return tableHeader{}, relerr.Wrap(relerr.Codec, "engine.readTableHeader", err)
		}
		off += 4
		root := alloc.SlotPtrFromBytes(buf[off : off+alloc.ByteSize])
		off += alloc.ByteSize
		fanout, err := codec.DecodeUint32(buf[off : off+4])
		if err != nil {
			return tableHeader{}, relerr.Wrap(relerr.Codec, "engine.readTableHeader", err)
		}
		off += 4
		hdr.secondary[i] = secondaryEntry{ordinal: ordinal, root: root, fanout: fanout}
	}

	return hdr, nil
}
