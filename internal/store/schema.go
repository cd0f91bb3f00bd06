package store

import (
	"context"
	"fmt"
	"strings"

	"admindata/internal/metadata"
)

// Schema creates backing tables from model metadata. It exists so the
// reference backend is self-contained: boot code and tests hand it the
// registered models and get a usable database back. It only adds —
// existing tables gain missing columns, nothing is dropped.
type Schema struct {
	store *Store
}

func NewSchema(store *Store) *Schema {
	return &Schema{store: store}
}

// Sync ensures tables, indexes and join tables exist for every model
// in the registry. Join tables are created after all model tables so
// their FK references resolve.
func (s *Schema) Sync(ctx context.Context, reg *metadata.Registry) error {
	models := reg.All()
	for _, m := range models {
		if err := s.syncModel(ctx, reg, m); err != nil {
			return err
		}
	}
	for _, m := range models {
		for i := range m.Relations {
			rel := &m.Relations[i]
			if !rel.IsManyToMany() {
				continue
			}
			if err := s.syncJoinTable(ctx, reg, m, rel); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Schema) syncModel(ctx context.Context, reg *metadata.Registry, m *metadata.Model) error {
	exists, err := s.store.Dialect.TableExists(ctx, s.store.DB, m.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}
	if !exists {
		return s.createTable(ctx, reg, m)
	}
	return s.alterTable(ctx, m)
}

func (s *Schema) createTable(ctx context.Context, reg *metadata.Registry, m *metadata.Model) error {
	var cols []string
	for i := range m.Fields {
		cols = append(cols, s.columnDef(m, &m.Fields[i]))
	}

	// FK clauses for to-one relations, honoring the delete policy
	for i := range m.Relations {
		rel := &m.Relations[i]
		if !rel.IsToOne() {
			continue
		}
		target, err := reg.Resolve(rel.Target)
		if err != nil {
			return fmt.Errorf("relation %s.%s: %w", m.DottedName(), rel.Name, err)
		}
		clause := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)",
			rel.Column, target.Table, target.PrimaryKeyField())
		if rel.DeletePolicy() == metadata.OnDeleteCascade {
			clause += " ON DELETE CASCADE"
		}
		cols = append(cols, clause)
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", m.Table, strings.Join(cols, ",\n  "))
	if _, err := s.store.Exec(ctx, s.store.DB, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", m.Table, err)
	}

	return s.createIndexes(ctx, m)
}

func (s *Schema) alterTable(ctx context.Context, m *metadata.Model) error {
	existing, err := s.store.Dialect.GetColumns(ctx, s.store.DB, m.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", m.Table, err)
	}

	for i := range m.Fields {
		f := &m.Fields[i]
		if _, ok := existing[f.Name]; ok {
			continue
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			m.Table, f.Name, s.store.Dialect.ColumnType(f.Type, f.Precision))
		if _, err := s.store.Exec(ctx, s.store.DB, ddl); err != nil {
			return fmt.Errorf("add column %s.%s: %w", m.Table, f.Name, err)
		}
	}

	return s.createIndexes(ctx, m)
}

func (s *Schema) syncJoinTable(ctx context.Context, reg *metadata.Registry, m *metadata.Model, rel *metadata.Relation) error {
	exists, err := s.store.Dialect.TableExists(ctx, s.store.DB, rel.JoinTable)
	if err != nil {
		return fmt.Errorf("check join table exists: %w", err)
	}
	if exists {
		return nil
	}

	target, err := reg.Resolve(rel.Target)
	if err != nil {
		return fmt.Errorf("relation %s.%s: %w", m.DottedName(), rel.Name, err)
	}

	sourcePK := m.GetField(m.PrimaryKeyField())
	targetPK := target.GetField(target.PrimaryKeyField())
	if sourcePK == nil || targetPK == nil {
		return fmt.Errorf("cannot resolve key types for join table %s", rel.JoinTable)
	}

	d := s.store.Dialect
	ddl := fmt.Sprintf(
		`CREATE TABLE %s (
  %s %s NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,
  %s %s NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,
  PRIMARY KEY (%s, %s)
)`,
		rel.JoinTable,
		rel.SourceJoinKey, d.ColumnType(sourcePK.Type, 0), m.Table, m.PrimaryKeyField(),
		rel.TargetJoinKey, d.ColumnType(targetPK.Type, 0), target.Table, target.PrimaryKeyField(),
		rel.SourceJoinKey, rel.TargetJoinKey,
	)

	if _, err := s.store.Exec(ctx, s.store.DB, ddl); err != nil {
		return fmt.Errorf("create join table %s: %w", rel.JoinTable, err)
	}
	return nil
}

func (s *Schema) columnDef(m *metadata.Model, f *metadata.Field) string {
	d := s.store.Dialect
	colType := d.ColumnType(f.Type, f.Precision)

	if f.Name == m.PrimaryKey.Field {
		if m.PrimaryKey.Generated && (f.Type == "int" || f.Type == "bigint") {
			return f.Name + " " + d.SerialType() + " PRIMARY KEY"
		}
		col := f.Name + " " + colType + " PRIMARY KEY"
		if m.PrimaryKey.Generated && f.Type == "uuid" && d.UUIDDefault() != "" {
			col += " " + d.UUIDDefault()
		}
		return col
	}

	col := f.Name + " " + colType
	if f.Required && !f.Nullable {
		col += " NOT NULL"
	}
	if f.Default != nil {
		switch v := f.Default.(type) {
		case string:
			col += fmt.Sprintf(" DEFAULT '%s'", v)
		case float64, int, int64:
			col += fmt.Sprintf(" DEFAULT %v", v)
		case bool:
			col += fmt.Sprintf(" DEFAULT %t", v)
		default:
			col += fmt.Sprintf(" DEFAULT '%v'", v)
		}
	}
	return col
}

func (s *Schema) createIndexes(ctx context.Context, m *metadata.Model) error {
	for _, f := range m.Fields {
		if !f.Unique || f.Name == m.PrimaryKey.Field {
			continue
		}
		ddl := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			m.Table, f.Name, m.Table, f.Name)
		if _, err := s.store.Exec(ctx, s.store.DB, ddl); err != nil {
			return fmt.Errorf("create unique index on %s.%s: %w", m.Table, f.Name, err)
		}
	}
	return nil
}
