package status

import "testing"

func TestHolder(t *testing.T) {
	h := NewHolder(Starting)

	if h.Get() != Starting {
		t.Fatalf("status should be Starting, not %s", h.Get())
	}

	if prev := h.Set(Active); prev != Starting {
		t.Fatalf("previous status should be Starting, not %s", prev)
	}

	if h.Get() != Active || h.Get().String() != "Active" {
		t.Fatalf("status should be Active, not %s", h.Get())
	}

	if PlatformStatus(42).String() != "Unknown" || Quiesce.String() != "Quiesce" {
		t.Fatalf("unexpected String values")
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != 7 || names[0] != "Starting" || names[6] != "CatastrophicFailure" {
		t.Fatalf("unexpected names %v", names)
	}
}
