package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func countPrimary(assignments []TenantAssignment) int {
	n := 0
	for _, a := range assignments {
		if a.IsPrimary {
			n++
		}
	}
	return n
}

func TestNormalizeAssignments_RejectsEmpty(t *testing.T) {
	if _, err := NormalizeAssignments(nil); !errors.Is(err, ErrNoAssignments) {
		t.Fatalf("expected ErrNoAssignments, got %v", err)
	}
}

func TestNormalizeAssignments_PromotesFirstWhenNoneMarked(t *testing.T) {
	out, err := NormalizeAssignments([]TenantAssignment{
		{TenantID: "t1"},
		{TenantID: "t2"},
	})
	if err != nil {
		t.Fatalf("NormalizeAssignments: %v", err)
	}
	if countPrimary(out) != 1 {
		t.Fatalf("expected exactly one primary, got %d", countPrimary(out))
	}
	if !out[0].IsPrimary {
		t.Fatalf("expected first entry promoted, got %+v", out)
	}
}

func TestNormalizeAssignments_FirstMarkedWinsWhenSeveral(t *testing.T) {
	out, err := NormalizeAssignments([]TenantAssignment{
		{TenantID: "t1"},
		{TenantID: "t2", IsPrimary: true},
		{TenantID: "t3", IsPrimary: true},
	})
	if err != nil {
		t.Fatalf("NormalizeAssignments: %v", err)
	}
	if countPrimary(out) != 1 {
		t.Fatalf("expected exactly one primary, got %d", countPrimary(out))
	}
	if !out[1].IsPrimary {
		t.Fatalf("expected t2 to stay primary, got %+v", out)
	}
}

func TestRemoveAssignment_PromotesOnPrimaryRemoval(t *testing.T) {
	list := []TenantAssignment{
		{TenantID: "t1", IsPrimary: true},
		{TenantID: "t2"},
	}

	out := RemoveAssignment(list, "t1")
	if len(out) != 1 {
		t.Fatalf("expected one remaining entry, got %d", len(out))
	}
	if out[0].TenantID != "t2" || !out[0].IsPrimary {
		t.Fatalf("expected t2 promoted to primary, got %+v", out[0])
	}
}

func TestRemoveAssignment_NonPrimaryKeepsPrimary(t *testing.T) {
	list := []TenantAssignment{
		{TenantID: "t1", IsPrimary: true},
		{TenantID: "t2"},
	}

	out := RemoveAssignment(list, "t2")
	if len(out) != 1 || !out[0].IsPrimary || out[0].TenantID != "t1" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestRemoveAssignment_LastEntryLeavesEmptyList(t *testing.T) {
	out := RemoveAssignment([]TenantAssignment{{TenantID: "t1", IsPrimary: true}}, "t1")
	if len(out) != 0 {
		t.Fatalf("expected empty list, got %+v", out)
	}
}

func TestSetPrimaryAssignment(t *testing.T) {
	list := []TenantAssignment{
		{TenantID: "t1", IsPrimary: true},
		{TenantID: "t2"},
	}

	out := SetPrimaryAssignment(list, "t2")
	if countPrimary(out) != 1 {
		t.Fatalf("expected exactly one primary, got %d", countPrimary(out))
	}
	if !out[1].IsPrimary {
		t.Fatalf("expected t2 primary, got %+v", out)
	}

	// Unknown tenant ids leave the list untouched.
	out = SetPrimaryAssignment(list, "t-unknown")
	if !out[0].IsPrimary || out[1].IsPrimary {
		t.Fatalf("unknown tenant must not change primaries: %+v", out)
	}
}

func TestPermissionList_UnmarshalMixedShapes(t *testing.T) {
	payload := `["view:dashboard", {"name": "view:users", "description": "User listing"}, " manage:users ", {"name": ""}]`

	var list PermissionList
	if err := json.Unmarshal([]byte(payload), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := []string{"view:dashboard", "view:users", "manage:users"}
	if len(list) != len(want) {
		t.Fatalf("expected %v, got %v", want, list)
	}
	for i := range want {
		if list[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, list)
		}
	}
}

func TestPermissionList_UnmarshalRejectsGarbage(t *testing.T) {
	var list PermissionList
	if err := json.Unmarshal([]byte(`[42]`), &list); err == nil {
		t.Fatalf("expected error for numeric permission entry")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Admin@Example.COM "); got != "admin@example.com" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}
