package cfrealip

import (
	"net/netip"
	"sync"
	"testing"
)

func TestRangeStore_LoadNeverNil(t *testing.T) {
	var zero RangeStore
	if zero.Load() == nil {
		t.Fatal("zero RangeStore.Load() returned nil")
	}

	var nilStore *RangeStore
	if nilStore.Load() == nil {
		t.Fatal("nil RangeStore.Load() returned nil")
	}

	store := NewRangeStore(nil)
	if got := store.Load(); got != Empty() {
		t.Fatalf("NewRangeStore(nil).Load() = %v, want Empty()", got)
	}

	store.Store(nil)
	if got := store.Load(); got != Empty() {
		t.Fatalf("Load() after Store(nil) = %v, want Empty()", got)
	}
}

func TestRangeStore_Swap(t *testing.T) {
	first := testRanges(t)
	second := MustFromLines([]string{"198.41.128.0/17"}, nil)

	store := NewRangeStore(first)
	if old := store.Swap(second); old != first {
		t.Fatalf("Swap() old = %v, want first set", old)
	}
	if got := store.Ranges(); got != second {
		t.Fatalf("Ranges() = %v, want second set", got)
	}

	var zero RangeStore
	if old := zero.Swap(first); old != Empty() {
		t.Fatalf("zero Swap() old = %v, want Empty()", old)
	}
}

func TestRangeStore_ConcurrentSwapSeesCompleteSets(t *testing.T) {
	// Each set pairs one v4 block with one v6 block; a reader must never see
	// the v4 half of one set with the v6 half of another.
	setA := MustFromLines([]string{"103.21.244.0/22"}, []string{"2400:cb00::/32"})
	setB := MustFromLines([]string{"198.41.128.0/17"}, []string{"2606:4700::/32"})

	v4A, v6A := netip.MustParseAddr("103.21.244.1"), netip.MustParseAddr("2400:cb00::1")

	store := NewRangeStore(setA)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			if i%2 == 0 {
				store.Store(setB)
			} else {
				store.Store(setA)
			}
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}

				snapshot := store.Load()
				if snapshot.Contains(v4A) != snapshot.Contains(v6A) {
					t.Error("observed a mixed range set")
					return
				}
			}
		}()
	}

	wg.Wait()
}

func TestRangeProviderFunc(t *testing.T) {
	var nilFunc RangeProviderFunc
	if got := nilFunc.Ranges(); got != Empty() {
		t.Fatalf("nil RangeProviderFunc.Ranges() = %v, want Empty()", got)
	}

	set := testRanges(t)
	provider := RangeProviderFunc(func() *RangeSet { return set })
	if got := provider.Ranges(); got != set {
		t.Fatalf("RangeProviderFunc.Ranges() = %v, want set", got)
	}
}
