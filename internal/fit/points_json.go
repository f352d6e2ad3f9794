package fit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// PointsDocument is the JSON form of a control-point set: three equally
// long columns.
type PointsDocument struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
	Z []float64 `json:"z"`
}

// Points validates the document and builds a Points collection.
func (d PointsDocument) Points() (*Points, error) {
	return NewPoints(d.X, d.Y, d.Z)
}

// Document returns the JSON form of p.
func (p *Points) Document() PointsDocument {
	xs, ys, zs := p.Columns()
	return PointsDocument{X: xs, Y: ys, Z: zs}
}

func (p *Points) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Document())
}

func (p *Points) UnmarshalJSON(data []byte) error {
	var doc PointsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	parsed, err := doc.Points()
	if err != nil {
		return err
	}
	*p = *parsed
	return nil
}

// ReadPoints decodes a points document from r.
func ReadPoints(r io.Reader) (*Points, error) {
	var doc PointsDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode points: %w", err)
	}
	return doc.Points()
}

// LoadPoints reads a points document from a file.
func LoadPoints(path string) (*Points, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open points file: %w", err)
	}
	defer f.Close()

	return ReadPoints(f)
}
