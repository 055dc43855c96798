package engine

import "testing"

func TestDedup_FirstSeenWins(t *testing.T) {
	first := named("t", "a")
	shadow := named("t", "a")
	in := []*Resource{first, named("t", "b"), shadow, named("t", "c")}

	got := Dedup(in)
	assertOrder(t, got, "a", "b", "c")
	if got[0] != first {
		t.Error("Expected first occurrence kept, got the later one")
	}
}

func TestDedup_GroupIsPartOfIdentity(t *testing.T) {
	prod := named("t", "a")
	prod.Group = "prod"
	dev := named("t", "a")
	dev.Group = "dev"

	got := Dedup([]*Resource{prod, dev})
	if len(got) != 2 {
		t.Errorf("Expected resources in different groups kept apart, got %d", len(got))
	}
}

func TestDedup_Idempotent(t *testing.T) {
	in := []*Resource{named("t", "a"), named("t", "a"), named("t", "b")}
	once := Dedup(in)
	twice := Dedup(once)

	if len(once) != len(twice) {
		t.Fatalf("Expected idempotent dedup, got %d then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("Second dedup changed position %d", i)
		}
	}
}

func TestDedup_DropsNil(t *testing.T) {
	got := Dedup([]*Resource{named("t", "a"), nil, named("t", "b")})
	assertOrder(t, got, "a", "b")
}
