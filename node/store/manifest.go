package store

import (
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"quantumcoin.dev/node/consensus"
)

const SchemaVersionV1 uint32 = 1

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Manifest records what a chain directory was created for. It is written
// once, before the first block, and checked on every open.
type Manifest struct {
	SchemaVersion   uint32 `json:"schema_version"`
	Network         string `json:"network"`
	Backend         string `json:"backend"`
	EncodingVersion uint32 `json:"encoding_version"`
}

func manifestPath(chainDir string) string {
	return filepath.Join(chainDir, "MANIFEST.json")
}

func readManifest(chainDir string) (*Manifest, error) {
	b, err := os.ReadFile(manifestPath(chainDir)) // #nosec G304 -- chainDir is derived from operator-controlled datadir.
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "manifest json")
	}
	return &m, nil
}

func checkOrWriteManifest(chainDir string, opts Options) error {
	m, err := readManifest(chainDir)
	if os.IsNotExist(err) {
		return writeManifestAtomic(chainDir, &Manifest{
			SchemaVersion:   SchemaVersionV1,
			Network:         opts.Network,
			Backend:         opts.Backend,
			EncodingVersion: consensus.EncodingVersion,
		})
	}
	if err != nil {
		return errors.Wrap(err, "read manifest")
	}
	if m.SchemaVersion > SchemaVersionV1 {
		return errors.Errorf("manifest schema_version %d > supported %d", m.SchemaVersion, SchemaVersionV1)
	}
	if m.Network != opts.Network {
		return errors.Errorf("manifest network %q, opening as %q", m.Network, opts.Network)
	}
	if m.Backend != opts.Backend {
		return errors.Errorf("manifest backend %q, opening as %q", m.Backend, opts.Backend)
	}
	if m.EncodingVersion != consensus.EncodingVersion {
		return errors.Errorf("manifest encoding_version %d, node speaks %d", m.EncodingVersion, consensus.EncodingVersion)
	}
	return nil
}

// writeManifestAtomic writes MANIFEST.json as a crash-safe commit point:
// write temp -> fsync temp -> rename -> fsync dir.
func writeManifestAtomic(chainDir string, m *Manifest) error {
	if m == nil {
		return errors.New("manifest: nil")
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "manifest json")
	}
	b = append(b, '\n')

	final := manifestPath(chainDir)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) // #nosec G304 -- tmp path is derived from operator-controlled datadir.
	if err != nil {
		return errors.Wrap(err, "manifest open tmp")
	}
	_, werr := f.Write(b)
	serr := f.Sync()
	cerr := f.Close()
	if werr != nil {
		return errors.Wrap(werr, "manifest write tmp")
	}
	if serr != nil {
		return errors.Wrap(serr, "manifest fsync tmp")
	}
	if cerr != nil {
		return errors.Wrap(cerr, "manifest close tmp")
	}
	if err := os.Rename(tmp, final); err != nil {
		return errors.Wrap(err, "manifest rename")
	}

	// Fsync the directory so rename is durable.
	d, err := os.Open(chainDir) // #nosec G304 -- chainDir is derived from operator-controlled datadir.
	if err != nil {
		return errors.Wrap(err, "manifest fsync dir open")
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return errors.Wrap(err, "manifest fsync dir")
	}
	return errors.Wrap(d.Close(), "manifest fsync dir close")
}
