package memorymesh

import (
	"path/filepath"

	"github.com/opsagent/memorymesh/memory"
	"github.com/opsagent/memorymesh/memory/chromem"
)

func newVectorIndex() memory.Index {
	return chromem.New()
}

func newPersistentVectorIndex(storePath string) (memory.Index, error) {
	return chromem.NewPersistent(filepath.Join(storePath, "vectors"))
}
