package sim

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kelpwave/buoysim/internal/channel"
)

// LoadPositions reads a positions file from path: a JSON array of
// two-element [x, y] numeric arrays, consumed in order (first N for mobile
// buoys, the remainder for fixed). Any read or parse failure is wrapped so
// cmd/buoysim can map it to the documented exit code for an unreadable
// positions file.
func LoadPositions(path string) ([]channel.Vec2, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read positions file %s: %w", path, err)
	}

	var raw [][]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse positions file %s: %w", path, err)
	}

	out := make([]channel.Vec2, len(raw))
	for i, p := range raw {
		if len(p) != 2 {
			return nil, fmt.Errorf("parse positions file %s: entry %d has %d elements, want 2", path, i, len(p))
		}
		out[i] = channel.Vec2{X: p[0], Y: p[1]}
	}
	return out, nil
}
