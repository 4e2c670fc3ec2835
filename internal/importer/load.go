package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/p-n-ai/medq/internal/content"
)

// LoadPath reads a bundle from a directory of YAML files, a single YAML file
// or an XLSX workbook.
func LoadPath(path string) (content.Bundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return content.Bundle{}, err
	}
	if info.IsDir() {
		return LoadDir(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAMLFile(path)
	case ".xlsx":
		f, err := os.Open(path)
		if err != nil {
			return content.Bundle{}, err
		}
		defer f.Close()
		b, err := ReadWorkbook(f)
		if err != nil {
			return content.Bundle{}, fmt.Errorf("%s: %w", path, err)
		}
		return b, nil
	}
	return content.Bundle{}, fmt.Errorf("%s: unsupported file type (want .yaml, .yml or .xlsx)", path)
}
