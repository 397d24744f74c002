package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/beamrt/vm"
)

// ReadFile reads an image or assembly file, chosen by extension.
func ReadFile(path string) (*Image, error) {
	switch filepath.Ext(path) {
	case ImageExt:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		img, err := DecodeImage(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return img, nil
	case AssemblyExt:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		img, err := ParseAssembly(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return img, nil
	}
	return nil, fmt.Errorf("%s: not a module file", path)
}

// LoadFile reads, links and loads one module file.
func LoadFile(cs *vm.CodeServer, atoms *vm.AtomTable, path string) (*vm.Module, error) {
	img, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := img.Link(atoms)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := cs.Load(m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Infof("loaded %s from %s", img.Module, path)
	return m, nil
}

// DirSource finds modules by name in a list of directories. For each
// directory it tries name.bim, then name.yaml.
type DirSource struct {
	Paths []string
}

// Find returns the file that would be loaded for name.
func (s *DirSource) Find(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("loader: bad module name %q", name)
	}
	for _, dir := range s.Paths {
		for _, ext := range []string{ImageExt, AssemblyExt} {
			path := filepath.Join(dir, name+ext)
			if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("loader: module %s: %w", name, os.ErrNotExist)
}

// LoadModule implements vm.ModuleSource.
func (s *DirSource) LoadModule(atoms *vm.AtomTable, name string) (*vm.Module, error) {
	path, err := s.Find(name)
	if err != nil {
		return nil, err
	}
	img, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if img.Module != name {
		return nil, fmt.Errorf("loader: %s defines module %s, want %s", path, img.Module, name)
	}
	m, err := img.Link(atoms)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Infof("loading %s from %s", name, path)
	return m, nil
}

// IsModuleFile reports whether path has a module file extension.
func IsModuleFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ImageExt || ext == AssemblyExt
}

var _ vm.ModuleSource = (*DirSource)(nil)
