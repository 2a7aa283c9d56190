package db

import (
	"context"
	"errors"
	"time"

	"github.com/Archive-Origin/backend-sub002/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CertificateRepository persists ingested attestation certificates so the
// in-memory store can be rebuilt on restart. The in-memory store stays
// the source of truth for status queries; this repo is write-behind.
type CertificateRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCertificateRepository(db *gorm.DB, now func() time.Time) *CertificateRepository {
	if now == nil {
		now = time.Now
	}
	return &CertificateRepository{db: db, now: now}
}

// Save upserts a certificate record. Revocation fields only ever move
// toward revoked; a later save cannot resurrect a revoked row.
func (r *CertificateRepository) Save(ctx context.Context, cert *domain.AttestationCertificate) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := CertificateModel{
		CertHash:         cert.CertHash,
		Raw:              copyBytes(cert.PEM),
		IssuerCN:         cert.Issuer,
		SerialNumber:     cert.Serial,
		Status:           string(cert.Status),
		RevokedAt:        cert.RevokedAt,
		RevocationReason: cert.RevocationReason,
		Source:           cert.Source,
		CreatedAt:        cert.IngestedAt,
	}
	var existing CertificateModel
	err := r.db.WithContext(ctx).Where("cert_hash = ?", cert.CertHash).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
	case err != nil:
		return err
	case existing.Status == string(domain.CertStatusRevoked):
		return nil
	default:
		return r.db.WithContext(ctx).Model(&CertificateModel{}).
			Where("cert_hash = ?", cert.CertHash).
			Updates(map[string]interface{}{
				"status":            model.Status,
				"revoked_at":        model.RevokedAt,
				"revocation_reason": model.RevocationReason,
			}).Error
	}
}

func (r *CertificateRepository) Get(ctx context.Context, certHash string) (*domain.AttestationCertificate, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model CertificateModel
	err := r.db.WithContext(ctx).Where("cert_hash = ?", certHash).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return certFromModel(&model), nil
}

// ListAll streams every persisted certificate, used to warm the in-memory
// store at startup.
func (r *CertificateRepository) ListAll(ctx context.Context) ([]*domain.AttestationCertificate, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []CertificateModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.AttestationCertificate, 0, len(models))
	for i := range models {
		out = append(out, certFromModel(&models[i]))
	}
	return out, nil
}

func certFromModel(model *CertificateModel) *domain.AttestationCertificate {
	return &domain.AttestationCertificate{
		CertHash:         model.CertHash,
		Serial:           model.SerialNumber,
		Issuer:           model.IssuerCN,
		PEM:              copyBytes(model.Raw),
		Source:           model.Source,
		Status:           domain.CertStatus(model.Status),
		RevocationReason: model.RevocationReason,
		RevokedAt:        model.RevokedAt,
		IngestedAt:       model.CreatedAt,
	}
}
