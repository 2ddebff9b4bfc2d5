package engine

import (
	"os"

	"github.com/relcore/engine/internal/codec"
	"github.com/relcore/engine/internal/relerr"
)

// catalogFileName is the per-database table-name catalog (SPEC_FULL
// §3.1), plain file content rather than a slotted-page file since it
// never needs buffer-pool caching or record-level mutation.
const catalogFileName = "__tables__.cat"

// readCatalog loads the list of table names for a database directory.
// A missing catalog file means an empty, newly created database.
func readCatalog(dbDir string) ([]string, error) {
	path := dbDir + string(os.PathSeparator) + catalogFileName
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, relerr.Wrap(relerr.Io, "engine.readCatalog", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	elems, err := codec.DecodeSequence(data, codec.Size16)
	if err != nil {
		return nil, relerr.Wrap(relerr.Codec, "engine.readCatalog", err)
	}
	names := make([]string, len(elems))
	for i, e := range elems {
		names[i] = string(e)
	}
	return names, nil
}

// writeCatalog overwrites the database's table-name catalog file.
func writeCatalog(dbDir string, names []string) error {
	elems := make([][]byte, len(names))
	for i, n := range names {
		elems[i] = []byte(n)
	}
	data, err := codec.EncodeSequence(codec.Size16, elems)
	if err != nil {
		return relerr.Wrap(relerr.Codec, "engine.writeCatalog", err)
	}
	path := dbDir + string(os.PathSeparator) + catalogFileName
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return relerr.Wrap(relerr.Io, "engine.writeCatalog", err)
	}
	return nil
}
