package schema

import (
	"fmt"

	"github.com/rickgao/ashare-data/internal/model"
)

// FromSpecs builds a snapshot describing the given tables.
func FromSpecs(specs []model.TableSpec) (*Snapshot, error) {
	var snap Snapshot
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		for i, col := range spec.Columns {
			key := ""
			if spec.IsKey(col.Name) {
				key = "PRI"
			}
			snap.Columns = append(snap.Columns, ColumnRow{
				Schema:   spec.Schema,
				Table:    spec.Name,
				Name:     col.Name,
				Position: i + 1,
				Nullable: !spec.IsKey(col.Name),
				Type:     col.Type,
				Key:      key,
				Comment:  nullText(col.Comment),
			})
		}
		for i, k := range spec.Key {
			snap.Indexes = append(snap.Indexes, IndexRow{
				Schema: spec.Schema,
				Table:  spec.Name,
				Name:   PrimaryIndex,
				Column: k,
				Seq:    i + 1,
				Type:   "btree",
			})
		}
		snap.Comments = append(snap.Comments, CommentRow{
			Schema:  spec.Schema,
			Table:   spec.Name,
			Comment: nullText(spec.Comment),
		})
	}
	return &snap, nil
}

// Bootstrap writes a snapshot of specs to files, so tables can be created
// without a pre-existing database to pull from.
func Bootstrap(files Files, specs []model.TableSpec) error {
	snap, err := FromSpecs(specs)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if err := WriteSnapshot(files, snap); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return nil
}

