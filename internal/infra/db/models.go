package db

import "time"

type LedgerEntryModel struct {
	ID            int64     `gorm:"primaryKey"`
	EntryID       string    `gorm:"type:uuid;uniqueIndex;not null"`
	ContentHash   string    `gorm:"uniqueIndex:idx_ledger_triple;index;not null"`
	ManifestHash  string    `gorm:"uniqueIndex:idx_ledger_triple;not null"`
	SignatureHash string    `gorm:"uniqueIndex:idx_ledger_triple;not null"`
	LeafIndex     int64     `gorm:"index;not null"`
	LeafHash      []byte    `gorm:"type:bytea;not null"`
	ProofLevel    string    `gorm:"not null"`
	Timestamp     time.Time `gorm:"not null"`
}

type TreeRootModel struct {
	ID          int64     `gorm:"primaryKey"`
	TreeSize    int64     `gorm:"index;not null"`
	RootHash    []byte    `gorm:"type:bytea;not null"`
	PublishedAt time.Time `gorm:"not null"`
}

type CertificateModel struct {
	CertHash         string `gorm:"primaryKey"`
	Raw              []byte `gorm:"type:bytea;not null"`
	SubjectCN        string
	IssuerCN         string
	SerialNumber     string    `gorm:"index"`
	NotBefore        time.Time `gorm:"not null"`
	NotAfter         time.Time `gorm:"not null"`
	Status           string    `gorm:"not null"`
	RevokedAt        *time.Time
	RevocationReason string
	Source           string
	CreatedAt        time.Time `gorm:"not null"`
}
