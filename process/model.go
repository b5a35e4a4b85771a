package process

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ModelJar is the file name of an exported model's main archive.
const ModelJar = "model.jar"

// ErrUnsupportedModel is returned for a path that is neither a model jar,
// an exported zip nor a directory holding model.jar.
var ErrUnsupportedModel = errors.New("unsupported model location: expected a .jar, a .zip or a directory containing " + ModelJar)

// ModelPackage is a resolved model location.
type ModelPackage struct {
	// Jar is the absolute path of the model jar.
	Jar string
	// Dir is the directory the engine runs in; it holds the jar and its
	// libraries.
	Dir string

	temp string
}

// Extracted reports whether the package was unpacked into a temporary
// directory.
func (m *ModelPackage) Extracted() bool { return m.temp != "" }

// Cleanup removes the temporary directory of an extracted package. It is a
// no-op otherwise and safe to call more than once.
func (m *ModelPackage) Cleanup() error {
	if m.temp == "" {
		return nil
	}
	err := os.RemoveAll(m.temp)
	m.temp = ""
	return err
}

// ResolveModel locates the model jar for path. A .jar is used in place, a
// directory must contain model.jar, and a .zip export is extracted into a
// fresh temporary directory that Cleanup removes.
func ResolveModel(path string) (*ModelPackage, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", path, err)
	}

	if info.IsDir() {
		jar := filepath.Join(abs, ModelJar)
		if _, err := os.Stat(jar); err != nil {
			return nil, fmt.Errorf("model %q: %w", path, ErrUnsupportedModel)
		}
		return &ModelPackage{Jar: jar, Dir: abs}, nil
	}

	switch strings.ToLower(filepath.Ext(abs)) {
	case ".jar":
		return &ModelPackage{Jar: abs, Dir: filepath.Dir(abs)}, nil
	case ".zip":
		return extract(abs)
	}
	return nil, fmt.Errorf("model %q: %w", path, ErrUnsupportedModel)
}

func extract(archive string) (*ModelPackage, error) {
	tmp, err := os.MkdirTemp("", "simlink_")
	if err != nil {
		return nil, err
	}
	pkg := &ModelPackage{temp: tmp}

	if err := unzip(archive, tmp); err != nil {
		_ = pkg.Cleanup()
		return nil, fmt.Errorf("extract %q: %w", archive, err)
	}
	jar, err := findJar(tmp)
	if err != nil {
		_ = pkg.Cleanup()
		return nil, fmt.Errorf("model %q: %w", archive, err)
	}
	pkg.Jar = jar
	pkg.Dir = filepath.Dir(jar)
	return pkg, nil
}

func unzip(archive, dst string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	root := filepath.Clean(dst) + string(os.PathSeparator)
	for _, f := range r.File {
		target := filepath.Join(dst, f.Name)
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("illegal file path in archive: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := writeFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// findJar returns the shallowest model.jar below dir. Exports usually hold
// it at the top level, some wrap everything in one folder.
func findJar(dir string) (string, error) {
	best, depth := "", -1
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != ModelJar {
			return nil
		}
		rel, _ := filepath.Rel(dir, p)
		n := strings.Count(rel, string(os.PathSeparator))
		if depth < 0 || n < depth {
			best, depth = p, n
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if best == "" {
		return "", ErrUnsupportedModel
	}
	return best, nil
}
