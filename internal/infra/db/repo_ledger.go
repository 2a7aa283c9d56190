package db

import (
	"context"
	"errors"
	"time"

	"github.com/Archive-Origin/backend-sub002/internal/domain"
	"github.com/Archive-Origin/backend-sub002/internal/infra/merkle"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerRepository is the postgres-backed ledger. Proof paths are not
// stored; they are recomputed from the leaf sequence against the most
// recent published root covering the entry.
type LedgerRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLedgerRepository(db *gorm.DB, now func() time.Time) *LedgerRepository {
	if now == nil {
		now = time.Now
	}
	return &LedgerRepository{db: db, now: now}
}

func (r *LedgerRepository) Append(ctx context.Context, triple domain.HashTriple) (*domain.LedgerEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	tx := r.db.WithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}

	var existing LedgerEntryModel
	err := tx.Where("content_hash = ? AND manifest_hash = ? AND signature_hash = ?",
		triple.ContentHash, triple.ManifestHash, triple.SignatureHash).
		First(&existing).Error
	if err == nil {
		_ = tx.Rollback()
		return nil, domain.ErrDuplicateEntry
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		_ = tx.Rollback()
		return nil, err
	}

	var maxIndex int64
	if err := tx.Model(&LedgerEntryModel{}).
		Select("COALESCE(MAX(leaf_index), -1)").
		Scan(&maxIndex).Error; err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	entry := domain.LedgerEntry{
		EntryID:       uuid.NewString(),
		ContentHash:   triple.ContentHash,
		ManifestHash:  triple.ManifestHash,
		SignatureHash: triple.SignatureHash,
		Timestamp:     r.now().UTC(),
		ProofLevel:    domain.ProofLevelPending,
		LeafIndex:     maxIndex + 1,
	}
	model := LedgerEntryModel{
		EntryID:       entry.EntryID,
		ContentHash:   entry.ContentHash,
		ManifestHash:  entry.ManifestHash,
		SignatureHash: entry.SignatureHash,
		LeafIndex:     entry.LeafIndex,
		LeafHash:      entry.LeafHash(),
		ProofLevel:    string(entry.ProofLevel),
		Timestamp:     entry.Timestamp,
	}
	if err := tx.Create(&model).Error; err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *LedgerRepository) PublishRoot(ctx context.Context) ([]byte, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	tx := r.db.WithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}

	leaves, err := leafHashes(tx, 0)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	root, err := merkle.Root(leaves)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	head := TreeRootModel{
		TreeSize:    int64(len(leaves)),
		RootHash:    root,
		PublishedAt: r.now().UTC(),
	}
	if err := tx.Create(&head).Error; err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Model(&LedgerEntryModel{}).
		Where("leaf_index < ? AND proof_level = ?", head.TreeSize, string(domain.ProofLevelPending)).
		Update("proof_level", string(domain.ProofLevelRooted)).Error; err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return root, nil
}

func (r *LedgerRepository) Lookup(ctx context.Context, triple domain.HashTriple) (*domain.LedgerEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model LedgerEntryModel
	err := r.db.WithContext(ctx).
		Where("content_hash = ? AND manifest_hash = ? AND signature_hash = ?",
			triple.ContentHash, triple.ManifestHash, triple.SignatureHash).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrLedgerNotFound
		}
		return nil, err
	}

	entry := &domain.LedgerEntry{
		EntryID:       model.EntryID,
		ContentHash:   model.ContentHash,
		ManifestHash:  model.ManifestHash,
		SignatureHash: model.SignatureHash,
		Timestamp:     model.Timestamp,
		ProofLevel:    domain.ProofLevel(model.ProofLevel),
		LeafIndex:     model.LeafIndex,
	}
	if entry.ProofLevel != domain.ProofLevelRooted {
		return entry, nil
	}

	var head TreeRootModel
	err = r.db.WithContext(ctx).
		Where("tree_size > ?", model.LeafIndex).
		Order("tree_size DESC").
		First(&head).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Marked rooted but no covering root survived; serve it as
			// pending rather than fail the lookup.
			entry.ProofLevel = domain.ProofLevelPending
			return entry, nil
		}
		return nil, err
	}

	leaves, err := leafHashes(r.db.WithContext(ctx), head.TreeSize)
	if err != nil {
		return nil, err
	}
	path, err := merkle.ProofPath(leaves, int(model.LeafIndex))
	if err != nil {
		return nil, err
	}
	entry.MerkleRoot = copyBytes(head.RootHash)
	entry.TreeSize = head.TreeSize
	entry.ProofPath = path
	return entry, nil
}

func (r *LedgerRepository) Diagnose(ctx context.Context, triple domain.HashTriple) ([]string, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&LedgerEntryModel{}).
		Where("content_hash = ? AND manifest_hash = ?", triple.ContentHash, triple.ManifestHash).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return []string{"content and manifest matched but signature differs"}, nil
	}
	if err := r.db.WithContext(ctx).Model(&LedgerEntryModel{}).
		Where("content_hash = ?", triple.ContentHash).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return []string{"content matched but manifest differs"}, nil
	}
	return nil, nil
}

func leafHashes(tx *gorm.DB, upTo int64) ([][]byte, error) {
	query := tx.Model(&LedgerEntryModel{}).Order("leaf_index ASC")
	if upTo > 0 {
		query = query.Where("leaf_index < ?", upTo)
	}
	var models []LedgerEntryModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(models))
	for _, m := range models {
		out = append(out, copyBytes(m.LeafHash))
	}
	return out, nil
}
