package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/golem-base/golemsql"
)

// Catalog is the persistent schema registry for one schema_id. Tables
// are kept in memory and written through to a single TOML file on
// every mutation. Concurrent processes writing the same file are
// last-writer-wins; DDL is expected to be confined to a single
// administrative session.
type Catalog struct {
	mu       sync.RWMutex
	path     string
	schemaID string
	logger   *zap.Logger
	schema   *golemsql.Schema
}

// catalogFile is the on-disk TOML document. Unknown keys are ignored
// on load so newer writers stay readable.
type catalogFile struct {
	Tables []*golemsql.Table `toml:"tables"`
}

// DefaultCatalogDir resolves the platform user-data directory for
// schema files.
func DefaultCatalogDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "golembase", "schemas"), nil
}

// NewCatalog loads (or initializes empty) the catalog for schemaID.
func NewCatalog(cfg golemsql.CatalogConfig, schemaID string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := cfg.Dir
	if dir == "" {
		var err error
		dir, err = DefaultCatalogDir()
		if err != nil {
			return nil, golemsql.NewInternalError(golemsql.ErrCodeInternalFailure, "no catalog directory").WithCause(err)
		}
	}

	c := &Catalog{
		path:     filepath.Join(dir, schemaID+".toml"),
		schemaID: schemaID,
		logger:   logger,
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the catalog file location.
func (c *Catalog) Path() string {
	return c.path
}

// Schema returns the current in-memory schema. Callers must not
// mutate it; all mutation goes through Apply.
func (c *Catalog) Schema() *golemsql.Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schema
}

// Table resolves a table by name or reports ProgrammingError.
func (c *Catalog) Table(name string) (*golemsql.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t := c.schema.FindTable(name); t != nil {
		return t, nil
	}
	return nil, golemsql.NewProgrammingError(golemsql.ErrCodeUnknownTable, "unknown table").WithTable(name)
}

// TableNames returns table names in definition order.
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.schema.Tables))
	for _, t := range c.schema.Tables {
		names = append(names, t.Name)
	}
	return names
}

func (c *Catalog) load() error {
	c.schema = &golemsql.Schema{ID: c.schemaID}

	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return golemsql.NewInternalError(golemsql.ErrCodeInternalFailure, "read catalog %s", c.path).WithCause(err)
	}

	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return golemsql.NewInternalError(golemsql.ErrCodeCatalogCorrupt,
			"catalog file %s is not valid TOML", c.path).WithCause(err)
	}
	c.schema.Tables = file.Tables
	c.logger.Debug("catalog loaded",
		zap.String("schema_id", c.schemaID),
		zap.Int("tables", len(file.Tables)))
	return nil
}

// save writes the catalog atomically: encode to a temp file in the
// same directory, then rename over the target.
func (c *Catalog) save() error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return golemsql.NewInternalError(golemsql.ErrCodeInternalFailure, "create catalog dir %s", dir).WithCause(err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(c.path)+".*")
	if err != nil {
		return golemsql.NewInternalError(golemsql.ErrCodeInternalFailure, "create catalog temp file").WithCause(err)
	}
	defer os.Remove(tmp.Name())

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(catalogFile{Tables: c.schema.Tables}); err != nil {
		tmp.Close()
		return golemsql.NewInternalError(golemsql.ErrCodeInternalFailure, "encode catalog").WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		return golemsql.NewInternalError(golemsql.ErrCodeInternalFailure, "flush catalog temp file").WithCause(err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return golemsql.NewInternalError(golemsql.ErrCodeInternalFailure, "replace catalog file").WithCause(err)
	}
	c.logger.Debug("catalog saved", zap.String("path", c.path), zap.Int("tables", len(c.schema.Tables)))
	return nil
}

// Apply runs one DDL operation against the schema and persists the
// result. It is the only mutator.
func (c *Catalog) Apply(op DDLOp) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch o := op.(type) {
	case *CreateTableOp:
		return c.applyCreateTable(o)
	case *DropTableOp:
		return c.applyDropTable(o)
	case *CreateIndexOp:
		return c.applyCreateIndex(o)
	case *DropIndexOp:
		return c.applyDropIndex(o)
	case *AddColumnOp:
		return c.applyAddColumn(o)
	case *AddConstraintOp:
		return c.applyAddConstraint(o)
	}
	return golemsql.NewInternalError(golemsql.ErrCodeInternalFailure, "unknown DDL operation %T", op)
}

func (c *Catalog) applyCreateTable(op *CreateTableOp) error {
	if existing := c.schema.FindTable(op.Table.Name); existing != nil {
		if op.IfNotExists {
			return nil
		}
		return golemsql.NewProgrammingError(golemsql.ErrCodeDuplicateTable, "table already exists").WithTable(op.Table.Name)
	}
	if err := validateTable(op.Table); err != nil {
		return err
	}
	c.schema.Tables = append(c.schema.Tables, op.Table)
	if err := c.save(); err != nil {
		c.schema.Tables = c.schema.Tables[:len(c.schema.Tables)-1]
		return err
	}
	c.logger.Info("table created",
		zap.String("schema_id", c.schemaID),
		zap.String("table", op.Table.Name),
		zap.Int("columns", len(op.Table.Columns)))
	return nil
}

func (c *Catalog) applyDropTable(op *DropTableOp) error {
	idx := -1
	for i, t := range c.schema.Tables {
		if t.Name == op.Name {
			idx = i
			break
		}
	}
	if idx < 0 {
		if op.IfExists {
			return nil
		}
		return golemsql.NewProgrammingError(golemsql.ErrCodeUnknownTable, "unknown table").WithTable(op.Name)
	}
	dropped := c.schema.Tables[idx]
	c.schema.Tables = append(c.schema.Tables[:idx], c.schema.Tables[idx+1:]...)
	if err := c.save(); err != nil {
		c.schema.Tables = append(c.schema.Tables[:idx], append([]*golemsql.Table{dropped}, c.schema.Tables[idx:]...)...)
		return err
	}
	c.logger.Info("table dropped", zap.String("schema_id", c.schemaID), zap.String("table", op.Name))
	return nil
}

func (c *Catalog) applyCreateIndex(op *CreateIndexOp) error {
	table := c.schema.FindTable(op.Table)
	if table == nil {
		return golemsql.NewProgrammingError(golemsql.ErrCodeUnknownTable, "unknown table").WithTable(op.Table)
	}
	col := table.FindColumn(op.Column)
	if col == nil {
		return golemsql.NewProgrammingError(golemsql.ErrCodeUnknownColumn, "unknown column").
			WithTable(op.Table).WithColumn(op.Column)
	}
	if !col.Type.Indexable() {
		return golemsql.NewProgrammingError(golemsql.ErrCodeNotIndexable,
			"type %s cannot be indexed", col.Type).WithTable(op.Table).WithColumn(op.Column)
	}
	for _, idx := range table.Indexes {
		if idx.Name == op.Name {
			return golemsql.NewProgrammingError(golemsql.ErrCodeDuplicateColumn,
				"index %s already exists", op.Name).WithTable(op.Table)
		}
	}
	table.Indexes = append(table.Indexes, &golemsql.Index{Name: op.Name, Column: op.Column})
	if err := c.save(); err != nil {
		table.Indexes = table.Indexes[:len(table.Indexes)-1]
		return err
	}
	c.logger.Info("index created",
		zap.String("table", op.Table), zap.String("index", op.Name), zap.String("column", op.Column))
	return nil
}

func (c *Catalog) applyDropIndex(op *DropIndexOp) error {
	table := c.schema.FindTable(op.Table)
	if table == nil {
		return golemsql.NewProgrammingError(golemsql.ErrCodeUnknownTable, "unknown table").WithTable(op.Table)
	}
	for i, idx := range table.Indexes {
		if idx.Name == op.Name {
			removed := table.Indexes[i]
			table.Indexes = append(table.Indexes[:i], table.Indexes[i+1:]...)
			if err := c.save(); err != nil {
				table.Indexes = append(table.Indexes, removed)
				return err
			}
			c.logger.Info("index dropped", zap.String("table", op.Table), zap.String("index", op.Name))
			return nil
		}
	}
	return golemsql.NewProgrammingError(golemsql.ErrCodeUnknownColumn,
		"unknown index %s", op.Name).WithTable(op.Table)
}

func (c *Catalog) applyAddColumn(op *AddColumnOp) error {
	table := c.schema.FindTable(op.Table)
	if table == nil {
		return golemsql.NewProgrammingError(golemsql.ErrCodeUnknownTable, "unknown table").WithTable(op.Table)
	}
	if table.FindColumn(op.Column.Name) != nil {
		return golemsql.NewProgrammingError(golemsql.ErrCodeDuplicateColumn,
			"column already exists").WithTable(op.Table).WithColumn(op.Column.Name)
	}
	if err := validateColumn(op.Column); err != nil {
		return err
	}
	if op.Column.PrimaryKey {
		return golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"cannot add a primary key column to an existing table").WithTable(op.Table)
	}
	table.Columns = append(table.Columns, op.Column)
	if err := c.save(); err != nil {
		table.Columns = table.Columns[:len(table.Columns)-1]
		return err
	}
	c.logger.Info("column added", zap.String("table", op.Table), zap.String("column", op.Column.Name))
	return nil
}

func (c *Catalog) applyAddConstraint(op *AddConstraintOp) error {
	table := c.schema.FindTable(op.Table)
	if table == nil {
		return golemsql.NewProgrammingError(golemsql.ErrCodeUnknownTable, "unknown table").WithTable(op.Table)
	}
	for _, col := range op.Constraint.Columns {
		if table.FindColumn(col) == nil {
			return golemsql.NewProgrammingError(golemsql.ErrCodeUnknownColumn, "unknown column").
				WithTable(op.Table).WithColumn(col)
		}
	}
	table.Constraints = append(table.Constraints, op.Constraint)
	if err := c.save(); err != nil {
		table.Constraints = table.Constraints[:len(table.Constraints)-1]
		return err
	}
	// Recorded, never enforced: the store has no conditional write.
	c.logger.Warn("constraint recorded but not enforced",
		zap.String("table", op.Table),
		zap.String("kind", string(op.Constraint.Kind)))
	return nil
}

func validateTable(t *golemsql.Table) error {
	if !validIdentifier(t.Name) {
		return golemsql.NewProgrammingError(golemsql.ErrCodeBadIdentifier, "invalid table name %q", t.Name)
	}
	if len(t.Columns) == 0 {
		return golemsql.NewProgrammingError(golemsql.ErrCodeUnsupportedSQL, "table needs at least one column").WithTable(t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	pkCount := 0
	for _, col := range t.Columns {
		if seen[col.Name] {
			return golemsql.NewProgrammingError(golemsql.ErrCodeDuplicateColumn,
				"duplicate column").WithTable(t.Name).WithColumn(col.Name)
		}
		seen[col.Name] = true
		if err := validateColumn(col); err != nil {
			return err
		}
		if col.PrimaryKey {
			pkCount++
		}
	}
	if pkCount > 1 {
		return golemsql.NewProgrammingError(golemsql.ErrCodeUnsupportedSQL,
			"at most one primary key column is supported").WithTable(t.Name)
	}
	for _, idx := range t.Indexes {
		col := t.FindColumn(idx.Column)
		if col == nil {
			return golemsql.NewProgrammingError(golemsql.ErrCodeUnknownColumn,
				"index references unknown column").WithTable(t.Name).WithColumn(idx.Column)
		}
		if !col.Type.Indexable() {
			return golemsql.NewProgrammingError(golemsql.ErrCodeNotIndexable,
				"type %s cannot be indexed", col.Type).WithTable(t.Name).WithColumn(idx.Column)
		}
	}
	return nil
}

func validateColumn(col *golemsql.Column) error {
	if !validIdentifier(col.Name) {
		return golemsql.NewProgrammingError(golemsql.ErrCodeBadIdentifier, "invalid column name %q", col.Name)
	}
	switch col.Type {
	case golemsql.TypeDecimal, golemsql.TypeNumeric:
		if col.Precision <= 0 || col.Scale < 0 || col.Scale > col.Precision {
			return golemsql.NewProgrammingError(golemsql.ErrCodeUnsupportedSQL,
				"invalid DECIMAL(%d,%d)", col.Precision, col.Scale).WithColumn(col.Name)
		}
	}
	if col.PrimaryKey {
		if !col.Type.Indexable() {
			return golemsql.NewProgrammingError(golemsql.ErrCodeNotIndexable,
				"type %s cannot be a primary key", col.Type).WithColumn(col.Name)
		}
		// primary key implies indexed, not null
		col.Indexed = true
		col.Nullable = false
	}
	if col.Indexed && !col.Type.Indexable() {
		return golemsql.NewProgrammingError(golemsql.ErrCodeNotIndexable,
			"type %s cannot be indexed", col.Type).WithColumn(col.Name)
	}
	if col.AutoIncrement && !col.Type.IsIntegerType() {
		return golemsql.NewProgrammingError(golemsql.ErrCodeUnsupportedSQL,
			"AUTO_INCREMENT requires an integer column").WithColumn(col.Name)
	}
	return nil
}

// validIdentifier checks the [A-Za-z_][A-Za-z0-9_]* shape shared by
// table and column names.
func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
