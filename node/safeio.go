package node

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// operator files (chainspec, keystore) are small; anything larger is a
// wrong path
const maxOperatorFileSize = 1 << 20

func readFileByPath(path string) ([]byte, error) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	return readFileFromDir(dir, name)
}

func readFileFromDir(dir, name string) ([]byte, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, errors.Errorf("invalid file name: %q", name)
	}
	f, err := os.DirFS(dir).Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, maxOperatorFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxOperatorFileSize {
		return nil, errors.Errorf("%s exceeds %d bytes", name, maxOperatorFileSize)
	}
	return b, nil
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it into place, so readers never see a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
