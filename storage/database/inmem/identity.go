package inmemdb

import (
	"context"
	"sort"

	"github.com/internquest/backend/core/identity"
)

type identityRepository struct {
	db *identityTable
}

var _ identity.Repository = (*identityRepository)(nil) // interface compliance check

func NewIdentityRepository(db *DB) identity.Repository {
	return &identityRepository{db: db.identity}
}

// query returns all identities ordered by UID.
func (repo *identityRepository) query() []identity.Identity {
	ids := make([]identity.Identity, 0, len(repo.db.table))
	for _, id := range repo.db.table {
		ids = append(ids, *id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].UID < ids[j].UID })
	return ids
}

func (repo *identityRepository) CreateIdentity(_ context.Context, id identity.Identity) (identity.Identity, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, other := range repo.db.table {
		if other.Email == id.Email {
			return identity.Identity{}, identity.ErrEmailExists
		}
	}
	repo.db.table[id.UID] = &id
	return id, nil
}

func (repo *identityRepository) GetIdentity(_ context.Context, uid string) (identity.Identity, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if id, ok := repo.db.table[uid]; ok {
		return *id, nil
	}
	return identity.Identity{}, identity.ErrNotFound
}

func (repo *identityRepository) GetIdentityByEmail(_ context.Context, email string) (identity.Identity, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, id := range repo.db.table {
		if id.Email == email {
			return *id, nil
		}
	}
	return identity.Identity{}, identity.ErrNotFound
}

func (repo *identityRepository) ListIdentities(_ context.Context, afterUID string, limit int) ([]identity.Identity, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	all := repo.query()
	start := sort.Search(len(all), func(i int) bool { return all[i].UID > afterUID })
	all = all[start:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (repo *identityRepository) UpdateIdentity(_ context.Context, id identity.Identity) (identity.Identity, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[id.UID]
	if !ok {
		return identity.Identity{}, identity.ErrNotFound
	}
	orig.DisplayName = id.DisplayName
	orig.EmailVerified = id.EmailVerified
	orig.Disabled = id.Disabled
	orig.PasswordHash = id.PasswordHash
	orig.Claims = id.Claims
	orig.UpdatedAt = id.UpdatedAt
	orig.LastLogin = id.LastLogin
	return *orig, nil
}
