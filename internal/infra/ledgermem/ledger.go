package ledgermem

import (
	"context"
	"sync"
	"time"

	"github.com/Archive-Origin/backend-sub002/internal/domain"
	"github.com/Archive-Origin/backend-sub002/internal/infra/merkle"

	"github.com/google/uuid"
)

// Ledger is an append-only in-memory log with a triple index. Entries are
// born pending; PublishRoot computes a tree head over the current leaves
// and stamps every entry with its inclusion path under that root. Reads
// take the read lock only, appends are serialized.
type Ledger struct {
	mu        sync.RWMutex
	entries   []*domain.LedgerEntry
	byTriple  map[domain.HashTriple]int
	byContent map[string][]int
	leaves    [][]byte
	clock     func() time.Time
}

func New() *Ledger {
	return NewWithClock(nil)
}

func NewWithClock(clock func() time.Time) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{
		byTriple:  make(map[domain.HashTriple]int),
		byContent: make(map[string][]int),
		clock:     clock,
	}
}

// Append records a new entry for the triple. Committed records are never
// mutated afterwards; corrections are new entries.
func (l *Ledger) Append(ctx context.Context, triple domain.HashTriple) (*domain.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byTriple[triple]; exists {
		return nil, domain.ErrDuplicateEntry
	}
	entry := &domain.LedgerEntry{
		EntryID:       uuid.NewString(),
		ContentHash:   triple.ContentHash,
		ManifestHash:  triple.ManifestHash,
		SignatureHash: triple.SignatureHash,
		Timestamp:     l.clock().UTC(),
		ProofLevel:    domain.ProofLevelPending,
	}
	index := len(l.entries)
	l.entries = append(l.entries, entry)
	l.byTriple[triple] = index
	l.byContent[triple.ContentHash] = append(l.byContent[triple.ContentHash], index)
	l.leaves = append(l.leaves, domain.LeafHashForTriple(triple))
	return cloneEntry(entry), nil
}

// PublishRoot anchors every current entry under a freshly computed root.
func (l *Ledger) PublishRoot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	root, err := merkle.Root(l.leaves)
	if err != nil {
		return nil, err
	}
	size := int64(len(l.leaves))
	for i, entry := range l.entries {
		path, err := merkle.ProofPath(l.leaves, i)
		if err != nil {
			return nil, err
		}
		entry.MerkleRoot = root
		entry.ProofPath = path
		entry.LeafIndex = int64(i)
		entry.TreeSize = size
		entry.ProofLevel = domain.ProofLevelRooted
	}
	return root, nil
}

// Lookup requires all three hashes to coincide with a single entry.
func (l *Ledger) Lookup(ctx context.Context, triple domain.HashTriple) (*domain.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	index, ok := l.byTriple[triple]
	if !ok {
		return nil, domain.ErrLedgerNotFound
	}
	return cloneEntry(l.entries[index]), nil
}

// Diagnose reports near-miss notes from a closed set. It never returns
// entry contents, identifiers, or timestamps.
func (l *Ledger) Diagnose(ctx context.Context, triple domain.HashTriple) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	candidates := l.byContent[triple.ContentHash]
	if len(candidates) == 0 {
		return nil, nil
	}
	manifestMatched := false
	for _, i := range candidates {
		if l.entries[i].ManifestHash == triple.ManifestHash {
			manifestMatched = true
			break
		}
	}
	if manifestMatched {
		return []string{"content and manifest matched but signature differs"}, nil
	}
	return []string{"content matched but manifest differs"}, nil
}

// Size returns the current leaf count.
func (l *Ledger) Size() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.leaves))
}

func cloneEntry(entry *domain.LedgerEntry) *domain.LedgerEntry {
	out := *entry
	out.MerkleRoot = cloneBytes(entry.MerkleRoot)
	if entry.ProofPath != nil {
		out.ProofPath = make([][]byte, len(entry.ProofPath))
		for i, p := range entry.ProofPath {
			out.ProofPath[i] = cloneBytes(p)
		}
	}
	return &out
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
