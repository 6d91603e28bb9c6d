package relay

import "fmt"

// Transform is one reversible byte transformation applied to relayed
// bodies, such as a cipher or padding stage.
type Transform interface {
	Name() string
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// Pipeline applies transforms in order on Encode and in reverse order on
// Decode. The zero Pipeline is the identity.
type Pipeline []Transform

// Encode runs data through every transform in order.
func (p Pipeline) Encode(data []byte) ([]byte, error) {
	var err error
	for _, t := range p {
		if data, err = t.Encode(data); err != nil {
			return nil, fmt.Errorf("encode %s: %w", t.Name(), err)
		}
	}
	return data, nil
}

// Decode undoes Encode.
func (p Pipeline) Decode(data []byte) ([]byte, error) {
	var err error
	for i := len(p) - 1; i >= 0; i-- {
		if data, err = p[i].Decode(data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", p[i].Name(), err)
		}
	}
	return data, nil
}

// Names lists the transforms in encode order.
func (p Pipeline) Names() []string {
	names := make([]string, len(p))
	for i, t := range p {
		names[i] = t.Name()
	}
	return names
}
