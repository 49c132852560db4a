package marks

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type document struct {
	Marks []Mark `yaml:"marks"`
}

// Export writes every mark as a YAML document.
func (s *Store) Export(w io.Writer) error {
	marks, err := s.List()
	if err != nil {
		return err
	}
	if marks == nil {
		marks = []Mark{}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(document{Marks: marks}); err != nil {
		return fmt.Errorf("failed to encode marks: %w", err)
	}
	return enc.Close()
}

// Import reads a document written by Export and adds every mark in it.
// Existing marks are kept; marks in the document replace marks on the same
// subject. It returns the number of marks imported.
func (s *Store) Import(r io.Reader) (int, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to decode marks: %w", err)
	}

	for i, m := range doc.Marks {
		if err := s.Add(m); err != nil {
			return i, fmt.Errorf("mark %d: %w", i+1, err)
		}
	}
	return len(doc.Marks), nil
}
