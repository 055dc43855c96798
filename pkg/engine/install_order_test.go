package engine

import "testing"

func TestInstallOrderTable_Priority(t *testing.T) {
	table := InstallOrderTable{"docker.network": 1, "docker.container": 4}

	if p := table.Priority("docker.network"); p != 1 {
		t.Errorf("Expected priority 1, got %d", p)
	}
	if p := table.Priority("unknown.type"); p != DefaultInstallOrder {
		t.Errorf("Expected default priority %d for unknown type, got %d", DefaultInstallOrder, p)
	}

	var nilTable InstallOrderTable
	if p := nilTable.Priority("docker.network"); p != DefaultInstallOrder {
		t.Errorf("Expected default priority from nil table, got %d", p)
	}
}

func TestInstallOrderTable_Merge(t *testing.T) {
	base := InstallOrderTable{"a": 1, "b": 2}
	merged := base.Merge(InstallOrderTable{"b": 9, "c": 3})

	if merged["a"] != 1 || merged["b"] != 9 || merged["c"] != 3 {
		t.Errorf("Unexpected merge result: %v", merged)
	}
	if base["b"] != 2 {
		t.Errorf("Merge mutated the base table: %v", base)
	}
}

func TestSortByInstallOrder_Ascending(t *testing.T) {
	table := InstallOrderTable{"network": 1, "volume": 2, "container": 4}
	in := []*Resource{
		named("container", "c"),
		named("volume", "v"),
		named("network", "n"),
	}

	got := SortByInstallOrder(in, table, Ascending)
	assertOrder(t, got, "n", "v", "c")
}

func TestSortByInstallOrder_Descending(t *testing.T) {
	table := InstallOrderTable{"network": 1, "volume": 2, "container": 4}
	in := []*Resource{
		named("network", "n"),
		named("container", "c"),
		named("volume", "v"),
	}

	got := SortByInstallOrder(in, table, Descending)
	assertOrder(t, got, "c", "v", "n")
}

func TestSortByInstallOrder_StableForEqualPriorities(t *testing.T) {
	table := InstallOrderTable{"network": 1}
	in := []*Resource{
		named("network", "n1"),
		named("app", "a1"),
		named("app", "a2"),
		named("network", "n2"),
		named("app", "a3"),
	}

	got := SortByInstallOrder(in, table, Ascending)
	assertOrder(t, got, "n1", "n2", "a1", "a2", "a3")
}

func TestOperationDirection(t *testing.T) {
	if OperationCreate.Direction() != Ascending {
		t.Error("Expected create to sort ascending")
	}
	if OperationUpdate.Direction() != Descending {
		t.Error("Expected update to sort descending")
	}
	if OperationDelete.Direction() != Descending {
		t.Error("Expected delete to sort descending")
	}
}
