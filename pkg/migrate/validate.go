package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

var migrationName = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

const (
	upMarker   = "-- +goose Up"
	downMarker = "-- +goose Down"
)

// ValidateDir checks every .sql file in dir: the filename must carry a unique
// 14 digit version and the body must declare an Up section followed by a Down
// section. All problems are reported together.
func ValidateDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("migrations dir is required")
	}
	names, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	if len(names) == 0 {
		return fmt.Errorf("no migrations in %s", dir)
	}
	sort.Strings(names)

	var errs error
	versions := make(map[string]string, len(names))
	for _, path := range names {
		base := filepath.Base(path)
		m := migrationName.FindStringSubmatch(base)
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: want <14 digit version>_<snake_name>.sql", base))
			continue
		}
		if other, dup := versions[m[1]]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%s: version %s already used by %s", base, m[1], other))
		}
		versions[m[1]] = base
		errs = multierr.Append(errs, checkSections(path))
	}
	return errs
}

func checkSections(path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	up := strings.Index(string(body), upMarker)
	down := strings.Index(string(body), downMarker)
	switch {
	case up < 0:
		return fmt.Errorf("%s: missing %q", filepath.Base(path), upMarker)
	case down < 0:
		return fmt.Errorf("%s: missing %q", filepath.Base(path), downMarker)
	case down < up:
		return fmt.Errorf("%s: Down section precedes Up", filepath.Base(path))
	}
	return nil
}
