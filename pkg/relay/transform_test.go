package relay

import (
	"bytes"
	"errors"
	"slices"
	"testing"
)

type shift struct{ n byte }

func (s shift) Name() string { return "shift" }

func (s shift) Encode(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b + s.n
	}
	return out, nil
}

func (s shift) Decode(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b - s.n
	}
	return out, nil
}

type pad struct{ suffix []byte }

func (p pad) Name() string { return "pad" }

func (p pad) Encode(data []byte) ([]byte, error) {
	return append(bytes.Clone(data), p.suffix...), nil
}

func (p pad) Decode(data []byte) ([]byte, error) {
	if !bytes.HasSuffix(data, p.suffix) {
		return nil, errors.New("missing padding")
	}
	return data[:len(data)-len(p.suffix)], nil
}

func TestPipelineOrder(t *testing.T) {
	p := Pipeline{shift{n: 1}, pad{suffix: []byte{0xFF}}}

	enc, err := p.Encode([]byte{0x00, 0x10})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	// shift first, then pad: the pad byte must not be shifted.
	if want := []byte{0x01, 0x11, 0xFF}; !bytes.Equal(enc, want) {
		t.Errorf("Encode() = %x, want %x", enc, want)
	}

	dec, err := p.Decode(enc)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if want := []byte{0x00, 0x10}; !bytes.Equal(dec, want) {
		t.Errorf("Decode() = %x, want %x", dec, want)
	}

	if names := p.Names(); !slices.Equal(names, []string{"shift", "pad"}) {
		t.Errorf("Names() = %v, want [shift pad]", names)
	}
}

func TestPipelineIdentity(t *testing.T) {
	var p Pipeline
	data := []byte("unchanged")

	enc, err := p.Encode(data)
	if err != nil || !bytes.Equal(enc, data) {
		t.Errorf("Encode() = %q, %v, want identity", enc, err)
	}
	dec, err := p.Decode(data)
	if err != nil || !bytes.Equal(dec, data) {
		t.Errorf("Decode() = %q, %v, want identity", dec, err)
	}
}

func TestPipelineDecodeError(t *testing.T) {
	p := Pipeline{pad{suffix: []byte{0xAA}}}
	if _, err := p.Decode([]byte{0x01}); err == nil {
		t.Error("Decode() error = nil, want padding error")
	}
}
