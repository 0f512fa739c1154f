package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"kubeopt.ai/internal/app"
	"kubeopt.ai/internal/auth"
	"kubeopt.ai/internal/config"
	"kubeopt.ai/internal/store/pg"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cfg, err := config.Load()
	if err != nil {
		fail("config: %v", err)
	}
	store, err := pg.Open(cfg.Database.DSN)
	if err != nil {
		fail("open db: %v", err)
	}
	defer store.Close()

	a, err := app.New(cfg, store)
	if err != nil {
		fail("%v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		fail("ping db: %v", err)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "bootstrap":
		err = a.Bootstrap(ctx)
	case "create-user":
		err = runCreateUser(ctx, a, args)
	case "create-team":
		err = runCreateTeam(ctx, a, args)
	case "create-role":
		err = runCreateRole(ctx, a, args)
	case "add-member":
		err = runAddMember(ctx, a, args)
	case "check":
		err = runCheck(ctx, a, args)
	case "login":
		err = runLogin(ctx, a, args)
	default:
		usage()
	}
	if err != nil {
		fail("%s: %v", os.Args[1], err)
	}
}

func runCreateUser(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	password := fs.String("password", os.Getenv("KUBEOPT_USER_PASSWORD"), "initial password")
	first := fs.String("first-name", "", "first name")
	last := fs.String("last-name", "", "last name")
	superuser := fs.Bool("superuser", false, "grant superuser bypass")
	_ = fs.Parse(args)

	u, err := a.Identity.CreateUser(ctx, auth.NewUser{
		Email:       *email,
		Password:    *password,
		FirstName:   *first,
		LastName:    *last,
		IsSuperuser: *superuser,
	})
	if err != nil {
		return err
	}
	return printJSON(u)
}

func runCreateTeam(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("create-team", flag.ExitOnError)
	name := fs.String("name", "", "team name")
	slug := fs.String("slug", "", "team slug")
	desc := fs.String("description", "", "team description")
	_ = fs.Parse(args)

	t, err := a.Teams.CreateTeam(ctx, auth.NewTeam{Name: *name, Slug: *slug, Description: *desc})
	if err != nil {
		return err
	}
	return printJSON(t)
}

func runCreateRole(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("create-role", flag.ExitOnError)
	name := fs.String("name", "", "role name")
	desc := fs.String("description", "", "role description")
	perms := fs.String("permissions", "", "comma-separated permission names or resource:action pairs")
	_ = fs.Parse(args)

	var list []auth.Permission
	for _, item := range strings.Split(*perms, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if resource, action, ok := strings.Cut(item, ":"); ok {
			list = append(list, auth.Permission{Resource: resource, Action: action})
			continue
		}
		list = append(list, auth.Permission{Name: item})
	}
	r, err := a.Roles.CreateRole(ctx, auth.NewRole{Name: *name, Description: *desc, Permissions: list})
	if err != nil {
		return err
	}
	return printJSON(r)
}

func runAddMember(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("add-member", flag.ExitOnError)
	team := fs.String("team", "", "team slug")
	email := fs.String("email", "", "user email")
	role := fs.String("role", auth.RoleViewer, "role name")
	_ = fs.Parse(args)

	t, u, err := lookup(ctx, a, *team, *email)
	if err != nil {
		return err
	}
	r, err := a.Roles.GetRoleByName(ctx, *role)
	if err != nil {
		return fmt.Errorf("role %q: %w", *role, err)
	}
	m, err := a.Teams.AddMember(ctx, t, u, r)
	if err != nil {
		return err
	}
	return printJSON(m)
}

func runCheck(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	team := fs.String("team", "", "team slug")
	email := fs.String("email", "", "user email")
	resource := fs.String("resource", "", "resource")
	action := fs.String("action", "", "action")
	_ = fs.Parse(args)

	t, u, err := lookup(ctx, a, *team, *email)
	if err != nil {
		return err
	}
	err = a.Resolver.Authorize(ctx, u.ID, t.ID, *resource, *action)
	if errors.Is(err, auth.ErrPermissionDenied) {
		fmt.Println("deny")
		return err
	}
	if err != nil {
		return err
	}
	fmt.Println("allow")
	return nil
}

func runLogin(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	password := fs.String("password", os.Getenv("KUBEOPT_USER_PASSWORD"), "password")
	_ = fs.Parse(args)

	pair, _, err := a.Identity.Login(ctx, *email, *password, auth.ClientMeta{UserAgent: "authadmin"})
	if err != nil {
		return err
	}
	return printJSON(pair)
}

func lookup(ctx context.Context, a *app.App, slug, email string) (*auth.Team, *auth.User, error) {
	t, err := a.Teams.GetTeamBySlug(ctx, slug)
	if err != nil {
		return nil, nil, fmt.Errorf("team %q: %w", slug, err)
	}
	u, err := a.Identity.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("user %q: %w", email, err)
	}
	return t, u, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s bootstrap|create-user|create-team|create-role|add-member|check|login [flags]\n", os.Args[0])
	os.Exit(1)
}
