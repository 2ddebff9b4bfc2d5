package table

import (
	"github.com/relcore/engine/internal/alloc"
	"github.com/relcore/engine/internal/codec"
	"github.com/relcore/engine/internal/record"
	"github.com/relcore/engine/internal/relerr"
)

// descriptorWireSize is the fixed on-disk width of a column descriptor
// once its name and foreign-table-name have been replaced with slot
// pointers (grounded on original_source/src/rm/in_file.rs
// ColumnTypeInFile, a fixed repr(C) struct):
//
//	namePtr(8) foreignPtr(8) ordinal(4) type(1) maxLen(4) flags(1) default(13)
const descriptorWireSize = 8 + 8 + 4 + 1 + 4 + 1 + record.CellSize

const (
	descFlagCanBeNull     = 1 << 0
	descFlagHasIndex      = 1 << 1
	descFlagHasDefault    = 1 << 2
	descFlagIsPrimary     = 1 << 3
	descFlagIsForeign     = 1 << 4
	descFlagDefaultIsNull = 1 << 5
)

// InsertColumnDescriptor persists d, allocating separate string chains
// for its name and (when present) foreign table name, and returns the
// pointer to the descriptor's own fixed-width record.
func (h *Handle) InsertColumnDescriptor(d record.ColumnDescriptor) alloc.SlotPtr {
	namePtr := h.fh.Alloc([]byte(d.Name))
	foreignPtr := alloc.Null
	if d.IsForeign {
		foreignPtr = h.fh.Alloc([]byte(d.ForeignTableName))
	}
	return h.fh.Alloc(encodeDescriptorWire(d, namePtr, foreignPtr))
}

// GetColumnDescriptor resolves a descriptor previously written by
// InsertColumnDescriptor, following its name/foreign-table-name
// pointers.
func (h *Handle) GetColumnDescriptor(ptr alloc.SlotPtr) record.ColumnDescriptor {
	buf := h.fh.Get(ptr)
	d, namePtr, foreignPtr, err := decodeDescriptorWire(buf)
	if err != nil {
		panic(err)
	}
	d.Name = h.GetString(namePtr)
	if d.IsForeign {
		d.ForeignTableName = h.GetString(foreignPtr)
	}
	return d
}

// UpdateColumnDescriptor frees the old descriptor's string chains
// (name, foreign table name, and any Str default value) before writing
// the replacement.
func (h *Handle) UpdateColumnDescriptor(ptr alloc.SlotPtr, d record.ColumnDescriptor) alloc.SlotPtr {
	h.freeDescriptorStrings(ptr)
	namePtr := h.fh.Alloc([]byte(d.Name))
	foreignPtr := alloc.Null
	if d.IsForeign {
		foreignPtr = h.fh.Alloc([]byte(d.ForeignTableName))
	}
	return h.fh.Update(ptr, encodeDescriptorWire(d, namePtr, foreignPtr))
}

// DeleteColumnDescriptor frees the descriptor's string chains and its
// own record.
func (h *Handle) DeleteColumnDescriptor(ptr alloc.SlotPtr) {
	h.freeDescriptorStrings(ptr)
	h.fh.Delete(ptr)
}

func (h *Handle) freeDescriptorStrings(ptr alloc.SlotPtr) {
	buf := h.fh.Get(ptr)
	d, namePtr, foreignPtr, err := decodeDescriptorWire(buf)
	if err != nil {
		panic(err)
	}
	h.DeleteString(namePtr)
	if d.IsForeign {
		h.DeleteString(foreignPtr)
	}
	if d.Type == record.TypeStr && d.HasDefault && !d.DefaultIsNull {
		page, slot := d.DefaultValue.StrPtr()
		h.DeleteString(toSlotPtr(page, slot))
	}
}

func encodeDescriptorWire(d record.ColumnDescriptor, namePtr, foreignPtr alloc.SlotPtr) []byte {
	flags := byte(0)
	if d.CanBeNull {
		flags |= descFlagCanBeNull
	}
	if d.HasIndex {
		flags |= descFlagHasIndex
	}
	if d.HasDefault {
		flags |= descFlagHasDefault
	}
	if d.IsPrimary {
		flags |= descFlagIsPrimary
	}
	if d.IsForeign {
		flags |= descFlagIsForeign
	}
	if d.DefaultIsNull {
		flags |= descFlagDefaultIsNull
	}

	buf := make([]byte, 0, descriptorWireSize)
	nameBytes := make([]byte, alloc.ByteSize)
	namePtr.PutBytes(nameBytes)
	foreignBytes := make([]byte, alloc.ByteSize)
	foreignPtr.PutBytes(foreignBytes)

	buf = append(buf, nameBytes...)
	buf = append(buf, foreignBytes...)
	buf = append(buf, codec.EncodeUint32(d.Ordinal)...)
	buf = append(buf, byte(d.Type))
	buf = append(buf, codec.EncodeUint32(d.MaxLen)...)
	buf = append(buf, flags)
	buf = append(buf, record.EncodeCell(d.DefaultValue)...)
	return buf
}

func decodeDescriptorWire(buf []byte) (record.ColumnDescriptor, alloc.SlotPtr, alloc.SlotPtr, error) {
	if len(buf) != descriptorWireSize {
		return record.ColumnDescriptor{}, alloc.Null, alloc.Null, relerr.New(relerr.Codec, "table.decodeDescriptorWire", "descriptor has unexpected size")
	}
	namePtr := alloc.SlotPtrFromBytes(buf[0:8])
	foreignPtr := alloc.SlotPtrFromBytes(buf[8:16])
	ordinal, err := codec.DecodeUint32(buf[16:20])
	if err != nil {
		return record.ColumnDescriptor{}, alloc.Null, alloc.Null, relerr.Wrap(relerr.Codec, "table.decodeDescriptorWire", err)
	}
	typ := record.DataType(buf[20])
	maxLen, err := codec.DecodeUint32(buf[21:25])
	if err != nil {
		return record.ColumnDescriptor{}, alloc.Null, alloc.Null, relerr.Wrap(relerr.Codec, "table.decodeDescriptorWire", err)
	}
	flags := buf[25]
	defaultValue, err := record.DecodeCell(buf[26 : 26+record.CellSize])
	if err != nil {
		return record.ColumnDescriptor{}, alloc.Null, alloc.Null, err
	}

	d := record.ColumnDescriptor{
		Ordinal:       ordinal,
		Type:          typ,
		MaxLen:        maxLen,
		CanBeNull:     flags&descFlagCanBeNull != 0,
		HasIndex:      flags&descFlagHasIndex != 0,
		HasDefault:    flags&descFlagHasDefault != 0,
		IsPrimary:     flags&descFlagIsPrimary != 0,
		IsForeign:     flags&descFlagIsForeign != 0,
		DefaultIsNull: flags&descFlagDefaultIsNull != 0,
		DefaultValue:  defaultValue,
	}
	return d, namePtr, foreignPtr, nil
}
