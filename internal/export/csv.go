package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// WriteCSV writes the header and rows of t.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if len(t.Header) > 0 {
		if err := cw.Write(t.Header); err != nil {
			return err
		}
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// CSV writes each table to <dir>/<name>.csv, replacing an older export.
type CSV struct {
	dir string
}

func NewCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &CSV{dir: dir}, nil
}

func (c *CSV) Export(ctx context.Context, t Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := FileName(t.Name)
	tmp, err := os.CreateTemp(c.dir, ".export-*")
	if err != nil {
		return fmt.Errorf("export %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())
	if err := WriteCSV(tmp, t); err != nil {
		tmp.Close()
		return fmt.Errorf("export %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("export %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(c.dir, name)); err != nil {
		return fmt.Errorf("export %s: %w", name, err)
	}
	return nil
}

// FileName turns a table name into a safe file name.
func FileName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "export.csv"
	}
	return b.String() + ".csv"
}
