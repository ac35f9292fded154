package ble

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestFragmentReassembleRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 19, 200, 1500, 4096}
	for _, size := range sizes {
		data := make([]byte, size)
		rnd := rand.New(rand.NewSource(int64(size) + 1))
		rnd.Read(data)

		pkts := Fragment(4, 7, data, 64)

		r := NewReassembler()
		var got []byte
		var done bool
		var err error
		for _, p := range pkts {
			got, done, err = r.Write(p)
			if err != nil {
				t.Fatalf("size %d: unexpected error %v", size, err)
			}
		}
		if !done {
			t.Fatalf("size %d: reassembly never completed", size)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("size %d: round-trip mismatch: got %d bytes, want %d", size, len(got), len(data))
		}
	}
}

func TestFragmentSingleSubpacketCarriesHeader(t *testing.T) {
	data := []byte("hello")
	pkts := Fragment(4, 3, data, 64)
	if len(pkts) != 1 {
		t.Fatalf("expected 1 sub-packet for small payload, got %d", len(pkts))
	}

	r := NewReassembler()
	got, done, err := r.Write(pkts[0])
	if err != nil {
		t.Fatal(err)
	}
	if !done || !bytes.Equal(got, data) {
		t.Fatalf("unexpected reassembly result: %v done=%v", got, done)
	}
	if r.Version() != 4 || r.Seq() != 3 {
		t.Fatalf("expected version/seq from first sub-packet header to survive completion, got v=%d seq=%d", r.Version(), r.Seq())
	}
}

func TestReassemblerRejectsSkippedSubpacket(t *testing.T) {
	data := make([]byte, 300)
	pkts := Fragment(1, 1, data, 32)
	if len(pkts) < 3 {
		t.Fatalf("need at least 3 sub-packets for this test, got %d", len(pkts))
	}

	r := NewReassembler()
	if _, _, err := r.Write(pkts[0]); err != nil {
		t.Fatal(err)
	}
	// Skip pkts[1], feed pkts[2] directly.
	if _, _, err := r.Write(pkts[2]); err != ErrTrsmitrOutOfOrder {
		t.Fatalf("expected ErrTrsmitrOutOfOrder, got %v", err)
	}
}

func TestReassemblerExposesProgressForAcks(t *testing.T) {
	data := make([]byte, 300)
	pkts := Fragment(1, 1, data, 100)
	if len(pkts) < 3 {
		t.Fatalf("need at least 3 sub-packets for this test, got %d", len(pkts))
	}

	r := NewReassembler()
	for i, p := range pkts {
		_, done, err := r.Write(p)
		if err != nil {
			t.Fatal(err)
		}
		if r.SubpacketNo() != i {
			t.Fatalf("packet %d: expected SubpacketNo()=%d, got %d", i, i, r.SubpacketNo())
		}
		if r.Total() != len(data) {
			t.Fatalf("packet %d: expected Total()=%d, got %d", i, len(data), r.Total())
		}
		wantDone := i == len(pkts)-1
		if done != wantDone {
			t.Fatalf("packet %d: expected done=%v, got %v", i, wantDone, done)
		}
		if done && r.Received() != len(data) {
			t.Fatalf("expected Received()=%d on completion, got %d", len(data), r.Received())
		}
	}
}

func TestReassemblerDuplicateSubpacketResetsContext(t *testing.T) {
	data := make([]byte, 300)
	pkts := Fragment(1, 1, data, 32)
	if len(pkts) < 3 {
		t.Fatalf("need at least 3 sub-packets for this test, got %d", len(pkts))
	}

	r := NewReassembler()
	if _, _, err := r.Write(pkts[0]); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Write(pkts[1]); err != nil {
		t.Fatal(err)
	}
	// Retransmit of the just-processed sub-packet 1 does not advance the
	// sub-packet number by one, so it resets the context.
	if _, done, err := r.Write(pkts[1]); err != ErrTrsmitrOutOfOrder || done {
		t.Fatalf("expected duplicate to reset with ErrTrsmitrOutOfOrder, done=%v err=%v", done, err)
	}
}
