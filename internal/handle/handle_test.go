package handle

import "testing"

func TestReservedConsoleSlots(t *testing.T) {
	tbl := New()
	for _, h := range []Handle{ConsoleIn + 1, ConsoleOut + 1, ConsoleErr + 1} {
		e, err := tbl.Reference(h)
		if err != nil {
			t.Fatalf("reference console handle %d: %v", h, err)
		}
		if e.Kind != Console {
			t.Fatalf("handle %d: want Console, got %v", h, e.Kind)
		}
	}
	if err := tbl.Close(ConsoleOut + 1); err != nil {
		t.Fatalf("closing console handle should be a no-op success: %v", err)
	}
}

func TestAllocateReferenceClose(t *testing.T) {
	tbl := New()
	h, err := tbl.Allocate(File, 42, AccessRead|AccessWrite, "extra")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if h == Invalid {
		t.Fatal("Allocate returned Invalid")
	}

	e, err := tbl.Reference(h)
	if err != nil {
		t.Fatalf("Reference: %v", err)
	}
	if e.Kind != File || e.NativeFD != 42 || e.Extra != "extra" {
		t.Fatalf("unexpected entry: %+v", e)
	}

	if err := tbl.Close(h); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := tbl.Reference(h); err != ErrInvalid {
		t.Fatalf("Reference after Close: want ErrInvalid, got %v", err)
	}
}

func TestReferenceInvalid(t *testing.T) {
	tbl := New()
	if _, err := tbl.Reference(Invalid); err != ErrInvalid {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
	if _, err := tbl.Reference(Handle(999999)); err != ErrInvalid {
		t.Fatalf("want ErrInvalid for out-of-range handle, got %v", err)
	}
}

func TestOutOfHandles(t *testing.T) {
	tbl := New()
	var last error
	for i := 0; i < capacitySlots; i++ {
		_, last = tbl.Allocate(File, i, AccessRead, nil)
		if last != nil {
			break
		}
	}
	if last != ErrOutOfHandles {
		t.Fatalf("want ErrOutOfHandles eventually, got %v", last)
	}
}

func TestSlotReuseInstallsNewContents(t *testing.T) {
	tbl := New()
	h1, _ := tbl.Allocate(File, 1, AccessRead, nil)
	tbl.Close(h1)
	h2, _ := tbl.Allocate(File, 2, AccessRead, nil)
	// Slot indices may repeat (simple wrap per spec.md §3), so h2 may
	// equal h1; the reused slot must carry the new entry's contents.
	e, err := tbl.Reference(h2)
	if err != nil || e.NativeFD != 2 {
		t.Fatalf("reused slot has wrong contents: %+v, %v", e, err)
	}
}
