// Package seed provides the fixture the case store starts from and is reset to.
package seed

import (
	_ "embed"
	"fmt"

	"github.com/goccy/go-json"

	"whalewatcher/pkg/domain"
)

//go:embed seed.json
var fixture []byte

// Load decodes the embedded fixture. Every call returns an independent copy.
func Load() (domain.Snapshot, error) {
	return Decode(fixture)
}

// MustLoad is Load for program start-up paths where a broken fixture is fatal.
func MustLoad() domain.Snapshot {
	snap, err := Load()
	if err != nil {
		panic(err)
	}
	return snap
}

// Decode parses a snapshot document in the fixture format.
func Decode(data []byte) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode seed: %w", err)
	}
	return snap, nil
}
