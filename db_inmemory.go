package rnode

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

type InMemoryDeployStore struct {
	mu      sync.RWMutex
	deploys map[string]DeployRecord
}

var _ DeployStore = &InMemoryDeployStore{}

func NewInMemoryDeployStore() *InMemoryDeployStore {
	return &InMemoryDeployStore{
		deploys: make(map[string]DeployRecord),
	}
}

func (db *InMemoryDeployStore) AddDeploy(record DeployRecord) error {
	if record.Deploy == nil || len(record.Deploy.Sig) == 0 {
		return errors.Wrap(ErrInvalidDeployData, "deploy record has no signature")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.deploys[record.Id()]; ok {
		return errors.Wrapf(ErrDeployExists, "deploy %s", record.Id())
	}

	db.deploys[record.Id()] = record
	return nil
}

func (db *InMemoryDeployStore) GetDeploy(id string) (DeployRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	record, ok := db.deploys[id]
	if !ok {
		return DeployRecord{}, errors.Wrapf(ErrDeployNotFound, "deploy %s", id)
	}

	return record, nil
}

func (db *InMemoryDeployStore) SetDeployBlock(id string, blockHash string) error {
	return db.update(id, func(record *DeployRecord) {
		record.BlockHash = blockHash
	})
}

func (db *InMemoryDeployStore) SetDeployFinalized(id string, finalized bool) error {
	return db.update(id, func(record *DeployRecord) {
		record.Finalized = finalized
	})
}

func (db *InMemoryDeployStore) update(id string, fn func(record *DeployRecord)) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	record, ok := db.deploys[id]
	if !ok {
		return errors.Wrapf(ErrDeployNotFound, "deploy %s", id)
	}

	fn(&record)
	db.deploys[id] = record
	return nil
}

func (db *InMemoryDeployStore) ListPending() ([]DeployRecord, error) {
	return db.list(func(record DeployRecord) bool {
		return !record.Finalized
	}), nil
}

func (db *InMemoryDeployStore) ListByBlock(blockHash string) ([]DeployRecord, error) {
	return db.list(func(record DeployRecord) bool {
		return record.BlockHash == blockHash
	}), nil
}

func (db *InMemoryDeployStore) list(match func(record DeployRecord) bool) []DeployRecord {
	db.mu.RLock()
	defer db.mu.RUnlock()

	records := []DeployRecord{}
	for _, record := range db.deploys {
		if match(record) {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Submitted.Equal(records[j].Submitted) {
			return records[i].Id() < records[j].Id()
		}
		return records[i].Submitted.Before(records[j].Submitted)
	})

	return records
}
