package spec

import (
	"fmt"
	"io"
	"os"

	"go.followtheprocess.codes/apidoc/internal/syntax"
	"go.followtheprocess.codes/apidoc/internal/syntax/parser"
)

// Load parses and resolves a document read from r, syntax errors are passed to
// handler as they are found.
//
// Schema errors in individual endpoints don't fail the load, see [Document.Err].
func Load(name string, r io.Reader, handler syntax.ErrorHandler) (Document, error) {
	p, err := parser.New(name, r, handler)
	if err != nil {
		return Document{}, err
	}

	file, err := p.Parse()
	if err != nil {
		return Document{}, err
	}

	return ResolveFile(file)
}

// LoadFile is [Load] for the file at path.
func LoadFile(path string, handler syntax.ErrorHandler) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	return Load(path, f, handler)
}
