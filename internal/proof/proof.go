// Package proof builds simulated storage attestations. The root is a binary
// Merkle tree over per-node commitments, so a proof can be re-verified against
// the file hash it was issued for.
package proof

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/hasher"
	"github.com/wagnerlima/memory-cloud/trust-ledger/internal/models"
)

const DefaultNetwork = "DataHaven Testnet"

// DefaultSeeds are the storage node names proofs are drawn from.
var DefaultSeeds = []string{"node-alpha", "node-beta", "node-gamma", "node-delta"}

// Generator issues storage proofs. Every call is independent: node suffixes and
// the proof id are fresh each time.
type Generator struct {
	Network string
	Seeds   []string
	Now     func() time.Time
}

// NewGenerator returns a generator for network using DefaultSeeds.
func NewGenerator(network string) *Generator {
	if network == "" {
		network = DefaultNetwork
	}
	seeds := make([]string, len(DefaultSeeds))
	copy(seeds, DefaultSeeds)
	return &Generator{Network: network, Seeds: seeds, Now: time.Now}
}

// Generate builds a proof for fileHash.
func (g *Generator) Generate(datasetID int64, fileHash string) models.StorageProof {
	nodes := make([]string, len(g.Seeds))
	for i, seed := range g.Seeds {
		nodes[i] = fmt.Sprintf("dh://%s-%s.testnet", seed, hasher.RandomID(4))
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	return models.StorageProof{
		ProofID:      hasher.RandomID(16),
		DatasetID:    datasetID,
		StorageNodes: nodes,
		MerkleRoot:   Root(fileHash, nodes),
		Timestamp:    now().UTC(),
		Network:      g.Network,
		Verified:     true,
	}
}

// Verify recomputes the root of p against fileHash.
func Verify(p models.StorageProof, fileHash string) bool {
	if len(p.StorageNodes) == 0 {
		return false
	}
	return Root(fileHash, p.StorageNodes) == p.MerkleRoot
}

// Root returns the Merkle root over leaves sha256(fileHash || node).
func Root(fileHash string, nodes []string) string {
	if len(nodes) == 0 {
		return ""
	}
	level := make([][]byte, len(nodes))
	for i, n := range nodes {
		level[i] = leaf(fileHash, n)
	}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		level = next
	}
	return hex.EncodeToString(level[0])
}

func leaf(fileHash, node string) []byte {
	h := sha256.New()
	h.Write([]byte(fileHash))
	h.Write([]byte(node))
	return h.Sum(nil)
}

func hashPair(left, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}
