package identity

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileSource reads a YAML roster:
//
//	identities:
//	  - id: "7"
//	    name: Ada
//	    pin: "4821"
//	    embeddings: [[0.1, 0.2, ...], ...]
type FileSource struct {
	Path string
}

type rosterFile struct {
	Identities []Identity `yaml:"identities"`
}

func (f FileSource) Load(_ context.Context) ([]Identity, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", f.Path, err)
	}
	var parsed rosterFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", f.Path, err)
	}
	return parsed.Identities, nil
}
