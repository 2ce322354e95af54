package workflow

import (
	"os"
	"path/filepath"
)

// Failure pairs a definition file with the reason it was rejected.
type Failure struct {
	Path string
	Err  error
}

// ValidateDir parses every YAML file under dir and returns the ones
// that fail, one Failure per file. Structural directory problems are
// returned as a CatalogError.
func ValidateDir(dir string) ([]Failure, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &CatalogError{Code: DirectoryNotFound, Path: dir, Err: err}
		}
		return nil, &CatalogError{Code: DirectoryScanFailed, Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &CatalogError{Code: NotADirectory, Path: dir}
	}

	var failures []Failure
	seenNames := make(map[string]string) // name -> first file
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		def, perr := parseFile(path)
		if perr != nil {
			failures = append(failures, Failure{Path: path, Err: perr})
			return nil
		}
		if first, dup := seenNames[def.Name]; dup {
			failures = append(failures, Failure{
				Path: path,
				Err:  &duplicateNameError{name: def.Name, firstPath: first},
			})
			return nil
		}
		seenNames[def.Name] = path
		return nil
	})
	if err != nil {
		return nil, &CatalogError{Code: DirectoryScanFailed, Path: dir, Err: err}
	}
	return failures, nil
}

type duplicateNameError struct {
	name      string
	firstPath string
}

func (e *duplicateNameError) Error() string {
	return "duplicate workflow name " + e.name + " (first defined in " + e.firstPath + ")"
}
