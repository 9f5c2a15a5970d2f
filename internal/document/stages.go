package document

import (
	"fmt"

	"github.com/rackerlabs/fleece/internal/stage"
)

// Stages parses the document's stages section into an ordered stage
// table. A missing section yields an empty table; render and import fail
// later with an unknown-stage error when the table cannot satisfy a
// lookup.
func (d *Document) Stages() (stage.Table, error) {
	raw := d.StagesNode()
	if raw == nil {
		return stage.NewTable(), nil
	}
	if raw.Kind != KindMapping {
		return stage.Table{}, fmt.Errorf("stages section must be a mapping")
	}

	entries := make([]stage.Entry, 0, len(raw.Pairs))
	for _, p := range raw.Pairs {
		if p.Value.Kind != KindMapping {
			return stage.Table{}, fmt.Errorf("stage %q must be a mapping with environment and key", p.Key)
		}
		info := stage.Info{}
		if env := p.Value.Get("environment"); env != nil && env.Kind == KindScalar {
			info.Environment = env.Value
		}
		if key := p.Value.Get("key"); key != nil && key.Kind == KindScalar {
			info.Key = key.Value
		}
		entries = append(entries, stage.Entry{Pattern: p.Key, Info: info})
	}
	return stage.NewTable(entries...), nil
}
