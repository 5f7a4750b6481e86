package inmemdb

import (
	"sync"

	"github.com/internquest/backend/core/identity"
)

type (
	DB struct {
		identity *identityTable
	}

	identityTable struct {
		table map[string]*identity.Identity
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		identity: &identityTable{table: make(map[string]*identity.Identity)},
	}
}
