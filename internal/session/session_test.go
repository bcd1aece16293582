package session

import (
	"context"
	"errors"
	"testing"

	"logguard/internal/state"
)

type fakeUsers map[string]*state.User

func (f fakeUsers) FindUser(_ context.Context, idOrName string) (*state.User, error) {
	if u, ok := f[idOrName]; ok {
		return u, nil
	}
	return nil, state.ErrNotFound
}

func TestResolve(t *testing.T) {
	users := fakeUsers{
		"root": {ID: 1, Username: "root", Role: &state.Role{Name: "admin"}},
		"eve":  {ID: 2, Username: "eve"},
	}
	ctx := context.Background()

	anon, err := Resolve(ctx, users, "")
	if err != nil {
		t.Fatal(err)
	}
	if anon.ActorID() != nil || anon.RunID == "" {
		t.Errorf("Expected anonymous session with a run id, got %+v", anon)
	}
	if err := anon.RequireRole("admin"); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected forbidden for anonymous, got %v", err)
	}

	admin, err := Resolve(ctx, users, "root")
	if err != nil {
		t.Fatal(err)
	}
	if admin.ActorID() == nil || *admin.ActorID() != 1 {
		t.Errorf("Expected actor 1, got %v", admin.ActorID())
	}
	if err := admin.RequireRole("ADMIN"); err != nil {
		t.Errorf("Expected admin to pass, got %v", err)
	}

	plain, _ := Resolve(ctx, users, "eve")
	if err := plain.RequireRole("admin"); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected forbidden for roleless user, got %v", err)
	}

	if _, err := Resolve(ctx, users, "mallory"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}
