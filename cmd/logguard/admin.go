package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"logguard/internal/audit"
	"logguard/internal/state"
	"logguard/internal/types"
)

type subcommands map[string]func(ctx context.Context, args []string) error

func dispatch(ctx context.Context, name string, subs subcommands, args []string) error {
	names := make([]string, 0, len(subs))
	for n := range subs {
		names = append(names, n)
	}
	sort.Strings(names)
	if len(args) == 0 {
		return state.Invalidf("%s: missing subcommand (%s)", name, strings.Join(names, ", "))
	}
	fn, ok := subs[args[0]]
	if !ok {
		return state.Invalidf("%s: unknown subcommand %q (%s)", name, args[0], strings.Join(names, ", "))
	}
	return fn(ctx, args[1:])
}

// optional returns a pointer to v when the flag was set on the command line
func optional[T any](set map[string]bool, name string, v T) *T {
	if !set[name] {
		return nil
	}
	return &v
}

func usersCommand(ctx context.Context, args []string) error {
	return dispatch(ctx, "users", subcommands{
		"list":   usersList,
		"create": usersCreate,
		"update": usersUpdate,
		"delete": usersDelete,
	}, args)
}

func usersList(ctx context.Context, args []string) error {
	fs, g := newFlagSet("users list", "")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	t := newTable("ID", "USERNAME", "ROLE", "CREATED")
	for _, u := range users {
		role := "-"
		if u.Role != nil {
			role = u.Role.Name
		}
		t.row(u.ID, u.Username, role, fmtTime(u.CreatedAt))
	}
	t.flush()
	return nil
}

// roleRef resolves a role by id or name, turning a missing role into a referential error
func roleRef(ctx context.Context, store *state.Store, ref string) (*state.Role, error) {
	var (
		role *state.Role
		err  error
	)
	if id, perr := strconv.ParseUint(ref, 10, 64); perr == nil {
		role, err = store.GetRole(ctx, uint(id))
	} else {
		role, err = store.FindRole(ctx, ref)
	}
	if errors.Is(err, state.ErrNotFound) {
		return nil, fmt.Errorf("role %q does not exist: %w", ref, state.ErrReferential)
	}
	return role, err
}

func usersCreate(ctx context.Context, args []string) error {
	fs, g := newFlagSet("users create", "<username> <password>")
	roleName := fs.String("role", "", "Role name or id")
	if err := parse(fs, args, 2); err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var roleID *uint
	if *roleName != "" {
		role, err := roleRef(ctx, a.store, *roleName)
		if err != nil {
			return err
		}
		roleID = &role.ID
	}

	var created *state.User
	err = a.mutate(ctx, func(tx *state.Store, rec *audit.Logger) error {
		u, err := tx.CreateUser(ctx, fs.Arg(0), fs.Arg(1), roleID)
		if err != nil {
			return err
		}
		created = u
		return rec.Record(ctx, a.sess, "create", "user", u.ID, nil, u.Snapshot())
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created user #%d %s\n", created.ID, sanitize(created.Username))
	return nil
}

func usersUpdate(ctx context.Context, args []string) error {
	fs, g := newFlagSet("users update", "<user>")
	username := fs.String("username", "", "New username")
	password := fs.String("password", "", "New password")
	roleName := fs.String("role", "", "New role name or id")
	noRole := fs.Bool("no-role", false, "Remove the role")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if *roleName != "" && *noRole {
		return state.Invalidf("-role and -no-role are exclusive")
	}

	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	upd := state.UserUpdate{
		Username:  optional(set, "username", *username),
		Password:  optional(set, "password", *password),
		ClearRole: *noRole,
	}
	if *roleName != "" {
		role, err := roleRef(ctx, a.store, *roleName)
		if err != nil {
			return err
		}
		upd.RoleID = &role.ID
	}

	var updated *state.User
	err = a.mutate(ctx, func(tx *state.Store, rec *audit.Logger) error {
		u, err := tx.FindUser(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		before, after, err := tx.UpdateUser(ctx, u.ID, upd)
		if err != nil {
			return err
		}
		updated = after
		return rec.Record(ctx, a.sess, "update", "user", u.ID, before.Snapshot(), after.Snapshot())
	})
	if err != nil {
		return err
	}
	fmt.Printf("Updated user #%d %s\n", updated.ID, sanitize(updated.Username))
	return nil
}

func usersDelete(ctx context.Context, args []string) error {
	fs, g := newFlagSet("users delete", "<user>")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.sess.RequireRole("admin"); err != nil {
		return err
	}

	var deleted *state.User
	err = a.mutate(ctx, func(tx *state.Store, rec *audit.Logger) error {
		u, err := tx.FindUser(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		if a.sess.UserID != nil && *a.sess.UserID == u.ID {
			return state.Invalidf("refusing to delete the acting user")
		}
		if deleted, err = tx.DeleteUser(ctx, u.ID); err != nil {
			return err
		}
		return rec.Record(ctx, a.sess, "delete", "user", u.ID, deleted.Snapshot(), nil)
	})
	if err != nil {
		return err
	}
	fmt.Printf("Deleted user #%d %s\n", deleted.ID, sanitize(deleted.Username))
	return nil
}

func rolesCommand(ctx context.Context, args []string) error {
	return dispatch(ctx, "roles", subcommands{
		"list":   rolesList,
		"create": rolesCreate,
		"delete": rolesDelete,
	}, args)
}

func rolesList(ctx context.Context, args []string) error {
	fs, g := newFlagSet("roles list", "")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	roles, err := a.store.ListRoles(ctx)
	if err != nil {
		return err
	}
	t := newTable("ID", "NAME", "DESCRIPTION")
	for _, r := range roles {
		t.row(r.ID, r.Name, orDash(r.Description))
	}
	t.flush()
	return nil
}

func rolesCreate(ctx context.Context, args []string) error {
	fs, g := newFlagSet("roles create", "<name>")
	description := fs.String("description", "", "Role description")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var created *state.Role
	err = a.mutate(ctx, func(tx *state.Store, rec *audit.Logger) error {
		if created, err = tx.CreateRole(ctx, fs.Arg(0), *description); err != nil {
			return err
		}
		return rec.Record(ctx, a.sess, "create", "role", created.ID, nil, created.Snapshot())
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created role #%d %s\n", created.ID, sanitize(created.Name))
	return nil
}

func rolesDelete(ctx context.Context, args []string) error {
	fs, g := newFlagSet("roles delete", "<role>")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.sess.RequireRole("admin"); err != nil {
		return err
	}

	var deleted *state.Role
	err = a.mutate(ctx, func(tx *state.Store, rec *audit.Logger) error {
		r, err := roleRef(ctx, tx, fs.Arg(0))
		if err != nil {
			return err
		}
		if deleted, err = tx.DeleteRole(ctx, r.ID); err != nil {
			return err
		}
		return rec.Record(ctx, a.sess, "delete", "role", r.ID, deleted.Snapshot(), nil)
	})
	if err != nil {
		return err
	}
	fmt.Printf("Deleted role #%d %s; users holding it now have no role\n", deleted.ID, sanitize(deleted.Name))
	return nil
}

func attacksCommand(ctx context.Context, args []string) error {
	return dispatch(ctx, "attacks", subcommands{
		"list":   attacksList,
		"create": attacksCreate,
		"update": attacksUpdate,
		"delete": attacksDelete,
	}, args)
}

func attacksList(ctx context.Context, args []string) error {
	fs, g := newFlagSet("attacks list", "")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	ats, err := a.store.ListAttackTypes(ctx)
	if err != nil {
		return err
	}
	t := newTable("ID", "NAME", "CATEGORY", "SEVERITY", "DESCRIPTION")
	for _, at := range ats {
		t.row(at.ID, at.Name, at.Category, at.DefaultSeverity, orDash(at.Description))
	}
	t.flush()
	return nil
}

// parseCategorySeverity validates the optional -category and -severity flags
func parseCategorySeverity(category, severity string) (types.CIACategory, types.Severity, error) {
	var (
		cat types.CIACategory
		sev types.Severity
		err error
	)
	if category != "" {
		if cat, err = types.ParseCategory(category); err != nil {
			return "", "", state.Invalidf("%v", err)
		}
	}
	if severity != "" {
		if sev, err = types.ParseSeverity(severity); err != nil {
			return "", "", state.Invalidf("%v", err)
		}
	}
	return cat, sev, nil
}

func attacksCreate(ctx context.Context, args []string) error {
	fs, g := newFlagSet("attacks create", "<name>")
	description := fs.String("description", "", "Description")
	category := fs.String("category", "", "CIA category (derived from the name when empty)")
	severity := fs.String("severity", "", "Default severity (derived from the category when empty)")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	cat, sev, err := parseCategorySeverity(*category, *severity)
	if err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var created *state.AttackType
	err = a.mutate(ctx, func(tx *state.Store, rec *audit.Logger) error {
		if created, err = tx.CreateAttackType(ctx, fs.Arg(0), *description, cat, sev); err != nil {
			return err
		}
		return rec.Record(ctx, a.sess, "create", "attack_type", created.ID, nil, created.Snapshot())
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created attack type #%d %s (%s, %s)\n", created.ID, sanitize(created.Name), created.Category, created.DefaultSeverity)
	return nil
}

func attacksUpdate(ctx context.Context, args []string) error {
	fs, g := newFlagSet("attacks update", "<attack-type>")
	name := fs.String("name", "", "New name")
	description := fs.String("description", "", "New description")
	category := fs.String("category", "", "New CIA category")
	severity := fs.String("severity", "", "New default severity")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	cat, sev, err := parseCategorySeverity(*category, *severity)
	if err != nil {
		return err
	}

	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	upd := state.AttackTypeUpdate{
		Name:        optional(set, "name", *name),
		Description: optional(set, "description", *description),
	}
	if cat != "" {
		upd.Category = &cat
	}
	if sev != "" {
		upd.DefaultSeverity = &sev
	}
	var updated *state.AttackType
	err = a.mutate(ctx, func(tx *state.Store, rec *audit.Logger) error {
		at, err := tx.FindAttackType(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		before, after, err := tx.UpdateAttackType(ctx, at.ID, upd)
		if err != nil {
			return err
		}
		updated = after
		return rec.Record(ctx, a.sess, "update", "attack_type", at.ID, before.Snapshot(), after.Snapshot())
	})
	if err != nil {
		return err
	}
	fmt.Printf("Updated attack type #%d %s\n", updated.ID, sanitize(updated.Name))
	return nil
}

func attacksDelete(ctx context.Context, args []string) error {
	fs, g := newFlagSet("attacks delete", "<attack-type>")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	a, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.sess.RequireRole("admin"); err != nil {
		return err
	}

	var deleted *state.AttackType
	err = a.mutate(ctx, func(tx *state.Store, rec *audit.Logger) error {
		at, err := tx.FindAttackType(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		if deleted, err = tx.DeleteAttackType(ctx, at.ID); err != nil {
			return err
		}
		return rec.Record(ctx, a.sess, "delete", "attack_type", at.ID, deleted.Snapshot(), nil)
	})
	if err != nil {
		return err
	}
	fmt.Printf("Deleted attack type #%d %s\n", deleted.ID, sanitize(deleted.Name))
	return nil
}
