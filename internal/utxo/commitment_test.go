package utxo

import (
	"testing"

	"github.com/Klingon-tech/cryptoken/internal/storage"
	"github.com/Klingon-tech/cryptoken/pkg/types"
)

func TestCommitment_Empty(t *testing.T) {
	root, err := Commitment(NewStore(storage.NewMemory()))
	if err != nil {
		t.Fatalf("Commitment: %v", err)
	}
	if !root.IsZero() {
		t.Error("empty store commitment should be zero hash")
	}
}

func TestCommitment_Deterministic(t *testing.T) {
	makeStore := func(order []int) *Store {
		s := NewStore(storage.NewMemory())
		recs := []*Record{
			makeRecord("tx1", 0, "alice", 1000),
			makeRecord("tx2", 1, "bob", 2000),
			makeRecord("tx3", 0, "carol", 3000),
		}
		for _, i := range order {
			s.Put(recs[i])
		}
		return s
	}

	root1, _ := Commitment(makeStore([]int{0, 1, 2}))
	root2, _ := Commitment(makeStore([]int{2, 0, 1}))
	if root1.IsZero() {
		t.Fatal("commitment should not be zero")
	}
	if root1 != root2 {
		t.Error("commitment should not depend on insertion order")
	}
}

func TestCommitment_ChangesOnSpend(t *testing.T) {
	s := NewStore(storage.NewMemory())
	r := makeRecord("tx1", 0, "alice", 1000)
	s.Put(r)

	before, _ := Commitment(s)
	s.MarkSpent(r.Outpoint, types.Hash{0x01})
	after, _ := Commitment(s)

	if before == after {
		t.Error("spending an output should change the commitment")
	}
}

func TestHashRecord_DifferentFields(t *testing.T) {
	base := makeRecord("tx1", 0, "alice", 1000)
	tests := []struct {
		name   string
		mutate func(r *Record)
	}{
		{"amount", func(r *Record) { r.Amount = 1001 }},
		{"asset", func(r *Record) { r.Asset = types.AssetToken }},
		{"owner", func(r *Record) { r.PublicKeys = []string{"bob"} }},
		{"index", func(r *Record) { r.Outpoint.Index = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := *base
			tt.mutate(&r)
			if hashRecord(&r) == hashRecord(base) {
				t.Errorf("changing %s should change the hash", tt.name)
			}
		})
	}
}
