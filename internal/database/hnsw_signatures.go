package database

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"
)

// StoredSignature is a picture signature as kept by the store. Seq grows
// monotonically with insertion order.
type StoredSignature struct {
	Seq       int64
	PictureID string
	Signature []float32
}

// SignatureSource lists signatures stored after a given sequence number
type SignatureSource interface {
	SignaturesSince(ctx context.Context, seq int64) ([]StoredSignature, error)
}

// HNSWSignatureIndex wraps an HNSW graph over picture signatures. Pictures
// are immutable, so the index only ever grows; it catches up with the
// source before every search.
type HNSWSignatureIndex struct {
	source  SignatureSource
	graph   *hnsw.Graph[string]
	idToSig map[string][]float32
	lastSeq int64
	mu      sync.Mutex
}

var _ CandidateIndex = (*HNSWSignatureIndex)(nil)

// NewHNSWSignatureIndex creates an empty index fed by source
func NewHNSWSignatureIndex(source SignatureSource) *HNSWSignatureIndex {
	return &HNSWSignatureIndex{
		source:  source,
		idToSig: make(map[string][]float32),
	}
}

func newSignatureGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// add inserts signatures; caller holds mu
func (h *HNSWSignatureIndex) add(sigs []StoredSignature) {
	for _, s := range sigs {
		if s.Seq > h.lastSeq {
			h.lastSeq = s.Seq
		}
		if len(s.Signature) == 0 {
			continue
		}
		if _, ok := h.idToSig[s.PictureID]; ok {
			continue
		}
		if h.graph == nil {
			h.graph = newSignatureGraph()
		}
		h.graph.Add(hnsw.MakeNode(s.PictureID, s.Signature))
		h.idToSig[s.PictureID] = s.Signature
	}
}

// Sync pulls signatures added since the last sync
func (h *HNSWSignatureIndex) Sync(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.syncLocked(ctx)
}

func (h *HNSWSignatureIndex) syncLocked(ctx context.Context) error {
	if h.source == nil {
		return nil
	}
	sigs, err := h.source.SignaturesSince(ctx, h.lastSeq)
	if err != nil {
		return fmt.Errorf("load signatures: %w", err)
	}
	h.add(sigs)
	return nil
}

// Nearest returns up to k picture ids closest to sig by cosine distance
func (h *HNSWSignatureIndex) Nearest(ctx context.Context, sig []float32, k int) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.syncLocked(ctx); err != nil {
		return nil, err
	}
	if h.graph == nil || len(sig) == 0 || k <= 0 {
		return nil, nil
	}

	neighbors := h.graph.Search(sig, k)
	ids := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		ids = append(ids, n.Key)
	}
	return ids, nil
}

// Count returns the number of indexed signatures
func (h *HNSWSignatureIndex) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.idToSig)
}

// savedSignatures is the on-disk form of the index
type savedSignatures struct {
	LastSeq    int64
	Signatures []StoredSignature
}

// Save writes the indexed signatures to path. The graph itself is rebuilt on
// load, which keeps the file independent of the HNSW layout.
func (h *HNSWSignatureIndex) Save(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if path == "" {
		return nil
	}
	if len(h.idToSig) == 0 {
		_ = os.Remove(path)
		return nil
	}

	data := savedSignatures{LastSeq: h.lastSeq, Signatures: make([]StoredSignature, 0, len(h.idToSig))}
	for id, sig := range h.idToSig {
		data.Signatures = append(data.Signatures, StoredSignature{PictureID: id, Signature: sig})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create signature index file: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(data); err != nil {
		return fmt.Errorf("failed to encode signatures: %w", err)
	}
	return nil
}

// Load restores signatures saved by Save. A missing file is not an error.
func (h *HNSWSignatureIndex) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open signature index file: %w", err)
	}
	defer f.Close()

	var data savedSignatures
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode signatures: %w", err)
	}

	h.graph = nil
	h.idToSig = make(map[string][]float32, len(data.Signatures))
	h.add(data.Signatures)
	h.lastSeq = max(h.lastSeq, data.LastSeq)
	return nil
}
