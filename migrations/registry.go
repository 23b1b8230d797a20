package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"sort"
	"strings"

	buildrequests "github.com/goliatone/go-buildrequests"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	sourceLabel = "go-buildrequests"
	rootPath    = "data/sql/migrations"
)

// Source is the migration tree of one dialect.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel string
	Dialects    []string
	Sources     []Source
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

// WithDialects limits registration to the given dialects.
func WithDialects(dialects ...string) Option {
	return func(r *Registration) {
		next := make([]string, 0, len(dialects))
		for _, dialect := range dialects {
			if normalized := normalizeDialect(dialect); normalized != "" {
				next = append(next, normalized)
			}
		}
		if len(next) > 0 {
			r.Dialects = dedupe(next)
		}
	}
}

// DialectForDriver maps a database/sql driver name onto a migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pg", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: no dialect for driver %q", driver)
	}
}

// Sources returns the postgres tree at the root of data/sql/migrations and
// the sqlite tree under its sqlite directory. Each must hold *.up.sql files.
func Sources(root ...fs.FS) ([]Source, error) {
	tree := buildrequests.GetMigrationsFS()
	if len(root) > 0 && root[0] != nil {
		tree = root[0]
	}

	base, err := fs.Sub(tree, rootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootPath, err)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: rootPath, FS: base},
		{Dialect: DialectSQLite, Path: rootPath + "/sqlite", FS: sqliteFS},
	}
	for _, source := range sources {
		versions, err := Versions(source.FS)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s tree %q: %w", source.Dialect, source.Path, err)
		}
		if len(versions) == 0 {
			return nil, fmt.Errorf("migrations: %s tree %q has no *.up.sql files", source.Dialect, source.Path)
		}
	}
	return sources, nil
}

// ForDialect returns the migration tree for dialect.
func ForDialect(dialect string) (fs.FS, error) {
	sources, err := Sources()
	if err != nil {
		return nil, err
	}
	normalized := normalizeDialect(dialect)
	for _, source := range sources {
		if source.Dialect == normalized {
			return source.FS, nil
		}
	}
	return nil, fmt.Errorf("migrations: unknown dialect %q", dialect)
}

// Versions lists the up migrations of fsys, sorted, without the .up.sql suffix.
// Every up migration must have a matching down file.
func Versions(fsys fs.FS) ([]string, error) {
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, ".up.sql")
		if _, err := fs.Stat(fsys, version+".down.sql"); err != nil {
			return nil, fmt.Errorf("missing down migration for %s: %w", version, err)
		}
		versions = append(versions, version)
	}
	sort.Strings(versions)
	return versions, nil
}

// Register hands the tree of every selected dialect to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: sourceLabel,
		Dialects:    []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	sources, err := Sources()
	if err != nil {
		return reg, err
	}
	reg.Sources = sources

	for _, source := range sources {
		if !slices.Contains(reg.Dialects, source.Dialect) {
			continue
		}
		if err := registerFn(ctx, source.Dialect, reg.SourceLabel, source.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
		}
	}
	return reg, nil
}

func normalizeDialect(dialect string) string {
	return strings.TrimSpace(strings.ToLower(dialect))
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
