package common

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestPacketReaderFields(t *testing.T) {
	data := []byte{
		0x12,
		0x34, 0x56,
		0x01, 0x02, 0x03, 0x04,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x13, 0x88,
		0x02, 0x00, 0x00, 0x00, 0x00, 0x01,
		0xAA, 0xBB,
	}
	r := NewPacketReader(data)

	b, err := r.ReadByte()
	if err != nil || b != 0x12 {
		t.Fatalf("ReadByte() = 0x%02X, %v, want 0x12, nil", b, err)
	}

	u16, err := r.ReadUint16()
	if err != nil || u16 != 0x3456 {
		t.Fatalf("ReadUint16() = 0x%04X, %v, want 0x3456, nil", u16, err)
	}

	u32, err := r.ReadUint32()
	if err != nil || u32 != 0x01020304 {
		t.Fatalf("ReadUint32() = 0x%08X, %v, want 0x01020304, nil", u32, err)
	}

	u64, err := r.ReadUint64()
	if err != nil || u64 != 5000 {
		t.Fatalf("ReadUint64() = %d, %v, want 5000, nil", u64, err)
	}

	mac, err := r.ReadMAC()
	want := MACAddress{0x02, 0, 0, 0, 0, 0x01}
	if err != nil || mac != want {
		t.Fatalf("ReadMAC() = %v, %v, want %v, nil", mac, err, want)
	}

	if r.Remaining() != 2 {
		t.Errorf("Remaining() = %d, want 2", r.Remaining())
	}
	if !bytes.Equal(r.Rest(), []byte{0xAA, 0xBB}) {
		t.Errorf("Rest() = %x, want aabb", r.Rest())
	}
}

func TestPacketReaderShortRead(t *testing.T) {
	r := NewPacketReader([]byte{0x01, 0x02, 0x03})

	if _, err := r.ReadUint32(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadUint32() error = %v, want io.ErrUnexpectedEOF", err)
	}
	if r.Remaining() != 3 {
		t.Errorf("Remaining() after failed read = %d, want 3", r.Remaining())
	}

	if _, err := r.ReadBytes(3); err != nil {
		t.Fatalf("ReadBytes(3) error = %v", err)
	}
	if _, err := r.ReadByte(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadByte() at end error = %v, want io.ErrUnexpectedEOF", err)
	}
	if _, err := r.ReadBytes(-1); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadBytes(-1) error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestPacketWriter(t *testing.T) {
	w := NewPacketWriter(4)

	if err := w.WriteByte(0x02); err != nil {
		t.Fatalf("WriteByte() error = %v", err)
	}
	w.WriteUint32(0xDEADBEEF)
	w.WriteUint64(1)
	w.WriteUint16(1400)
	w.WriteMAC(MACAddress{1, 2, 3, 4, 5, 6})
	w.WriteBytes([]byte("hi"))

	want := []byte{
		0x02,
		0xDE, 0xAD, 0xBE, 0xEF,
		0, 0, 0, 0, 0, 0, 0, 1,
		0x05, 0x78,
		1, 2, 3, 4, 5, 6,
		'h', 'i',
	}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("Bytes() = %x, want %x", w.Bytes(), want)
	}
	if w.Len() != len(want) {
		t.Errorf("Len() = %d, want %d", w.Len(), len(want))
	}
}

func TestWriterReaderAgree(t *testing.T) {
	w := NewPacketWriter(16)
	w.WriteUint16(0x88B5)
	w.WriteUint32(7)

	r := NewPacketReader(w.Bytes())
	et, _ := r.ReadUint16()
	seq, _ := r.ReadUint32()
	if et != 0x88B5 || seq != 7 {
		t.Errorf("read back (0x%04X, %d), want (0x88B5, 7)", et, seq)
	}
}

func TestHexDump(t *testing.T) {
	data := []byte("GuardL2 frame\x00\x01\x02")
	dump := HexDump(data)

	if !strings.HasPrefix(dump, "0000  47 75 61 72") {
		t.Errorf("HexDump() first line = %q", strings.SplitN(dump, "\n", 2)[0])
	}
	if !strings.Contains(dump, "|GuardL2 frame...|") {
		t.Errorf("HexDump() missing ASCII column: %q", dump)
	}
	if strings.Count(dump, "\n") != 1 {
		t.Errorf("HexDump() lines = %d, want 1", strings.Count(dump, "\n"))
	}

	if HexDump(nil) != "" {
		t.Errorf("HexDump(nil) = %q, want empty", HexDump(nil))
	}
}
