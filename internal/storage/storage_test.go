package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/nimbusdash/aegis/internal/models"
)

func newUser(email string, assignments ...models.TenantAssignment) *models.User {
	return &models.User{
		Name:        "Test User",
		Email:       email,
		Password:    "hashed",
		Role:        models.RoleUser,
		Assignments: assignments,
	}
}

func TestInMemoryStorage_CreateUser_RequiresAssignments(t *testing.T) {
	store := NewInMemoryStorage()

	err := store.CreateUser(context.Background(), newUser("a@example.com"))
	if !errors.Is(err, models.ErrNoAssignments) {
		t.Fatalf("expected ErrNoAssignments, got %v", err)
	}
}

func TestInMemoryStorage_CreateUser_NormalizesEmailAndPrimary(t *testing.T) {
	store := NewInMemoryStorage()

	user := newUser("  Alice@Example.COM ",
		models.TenantAssignment{TenantID: "t1"},
		models.TenantAssignment{TenantID: "t2"},
	)
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.ID == "" {
		t.Fatalf("expected generated user id")
	}

	got, err := store.GetUserByEmail(context.Background(), "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", got.Email)
	}

	primaries := 0
	for _, a := range got.Assignments {
		if a.IsPrimary {
			primaries++
		}
		if a.UserID != user.ID {
			t.Fatalf("assignment not bound to user: %+v", a)
		}
	}
	if primaries != 1 {
		t.Fatalf("expected exactly one primary assignment, got %d", primaries)
	}
}

func TestInMemoryStorage_CreateUser_DuplicateEmail(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()

	a := models.TenantAssignment{TenantID: "t1", IsPrimary: true}
	if err := store.CreateUser(ctx, newUser("bob@example.com", a)); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := store.CreateUser(ctx, newUser("BOB@example.com", a)); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestInMemoryStorage_UpdateUser_EnforcesInvariants(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()

	user := newUser("carol@example.com",
		models.TenantAssignment{TenantID: "t1", IsPrimary: true},
		models.TenantAssignment{TenantID: "t2"},
	)
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// Removing the primary assignment must promote the remaining one.
	user.Assignments = models.RemoveAssignment(user.Assignments, "t1")
	if err := store.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	got, err := store.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if len(got.Assignments) != 1 || !got.Assignments[0].IsPrimary || got.Assignments[0].TenantID != "t2" {
		t.Fatalf("expected t2 promoted to primary, got %+v", got.Assignments)
	}

	// Dropping all assignments must be rejected.
	got.Assignments = nil
	if err := store.UpdateUser(ctx, got); !errors.Is(err, models.ErrNoAssignments) {
		t.Fatalf("expected ErrNoAssignments, got %v", err)
	}
}

func TestInMemoryStorage_GetUserReturnsCopies(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()

	user := newUser("dave@example.com", models.TenantAssignment{TenantID: "t1", IsPrimary: true})
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	first, _ := store.GetUserByID(ctx, user.ID)
	first.Assignments[0].TenantID = "mutated"

	second, _ := store.GetUserByID(ctx, user.ID)
	if second.Assignments[0].TenantID != "t1" {
		t.Fatalf("stored assignment mutated through returned copy")
	}
}

func TestInMemoryStorage_ListTenantsByIDs(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()

	for _, name := range []string{"beta", "alpha"} {
		if err := store.CreateTenant(ctx, &models.Tenant{ID: name, Name: name}); err != nil {
			t.Fatalf("CreateTenant: %v", err)
		}
	}

	tenants, err := store.ListTenantsByIDs(ctx, []string{"alpha", "missing", "beta"})
	if err != nil {
		t.Fatalf("ListTenantsByIDs: %v", err)
	}
	if len(tenants) != 2 {
		t.Fatalf("expected 2 tenants, got %d", len(tenants))
	}
	if tenants[0].Name != "alpha" || tenants[1].Name != "beta" {
		t.Fatalf("expected name-sorted tenants, got %+v", tenants)
	}
}

func TestInMemoryStorage_ListUsers_FilterAndPaginate(t *testing.T) {
	store := NewInMemoryStorage()
	ctx := context.Background()

	a := models.TenantAssignment{TenantID: "t1", IsPrimary: true}
	admin := newUser("zadmin@example.com", a)
	admin.Role = models.RoleAdmin
	if err := store.CreateUser(ctx, admin); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	for _, email := range []string{"u1@example.com", "u2@example.com"} {
		if err := store.CreateUser(ctx, newUser(email, a)); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}

	users, total, err := store.ListUsers(ctx, ListUsersParams{Role: models.RoleUser, SortDir: "asc"})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if total != 2 || len(users) != 2 {
		t.Fatalf("expected 2 role-filtered users, got total=%d len=%d", total, len(users))
	}

	users, total, err = store.ListUsers(ctx, ListUsersParams{Page: 2, PageSize: 2, SortDir: "asc"})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if total != 3 || len(users) != 1 {
		t.Fatalf("expected page 2 with 1 of 3 users, got total=%d len=%d", total, len(users))
	}
}
