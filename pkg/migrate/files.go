package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	fileNameRe  = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	nameCleanRe = regexp.MustCompile(`[^a-z0-9]+`)
)

const fileTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert %[1]s
-- +goose StatementEnd
`

// migrationFile is a parsed migration filename.
type migrationFile struct {
	Version int64
	Name    string
	File    string
}

// ValidateDir checks the migrations stored in dir.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateEmbedded checks the migrations compiled into the binary.
func ValidateEmbedded() error {
	sub, err := fs.Sub(embedded, embeddedDir)
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	return ValidateFS(sub)
}

// ValidateFS enforces YYYYMMDDHHMMSS_name.sql filenames, unique versions and
// goose Up/Down sections for every .sql file at the root of fsys.
func ValidateFS(fsys fs.FS) error {
	files, err := listFiles(fsys)
	if err != nil {
		return err
	}

	for i, f := range files {
		if i > 0 && files[i-1].Version == f.Version {
			return fmt.Errorf("duplicate migration version %d in %q and %q", f.Version, files[i-1].File, f.File)
		}

		body, err := fs.ReadFile(fsys, f.File)
		if err != nil {
			return fmt.Errorf("read %q: %w", f.File, err)
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(body), marker) {
				return fmt.Errorf("migration %q missing %q", f.File, marker)
			}
		}
	}
	return nil
}

// CreateSQLMigration writes an empty goose migration into dir and returns its
// path. The version is the current UTC second, bumped past the newest existing
// version so two files created in the same second still sort correctly.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	existing, err := listFiles(os.DirFS(dir))
	if err != nil {
		return "", err
	}
	version := nextVersion(existing, time.Now().UTC())

	path := filepath.Join(dir, fmt.Sprintf("%d_%s.sql", version, slug))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, fileTemplate, slug); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

func listFiles(fsys fs.FS) ([]migrationFile, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var out []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := fileNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name())
		}
		if _, err := time.Parse(versionLayout, m[1]); err != nil {
			return nil, fmt.Errorf("migration %q has an invalid timestamp", e.Name())
		}
		version, _ := strconv.ParseInt(m[1], 10, 64)
		out = append(out, migrationFile{Version: version, Name: m[2], File: e.Name()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func nextVersion(existing []migrationFile, now time.Time) int64 {
	version, _ := strconv.ParseInt(now.Format(versionLayout), 10, 64)
	if n := len(existing); n > 0 && existing[n-1].Version >= version {
		last, _ := time.Parse(versionLayout, strconv.FormatInt(existing[n-1].Version, 10))
		version, _ = strconv.ParseInt(last.Add(time.Second).Format(versionLayout), 10, 64)
	}
	return version
}

func slugify(name string) string {
	slug := nameCleanRe.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(slug, "_")
}
