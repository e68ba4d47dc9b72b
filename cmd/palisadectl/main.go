// Command palisadectl is an operator console for the authorization API. It
// signs in with the same credential flow the frontend uses and drives the
// role/permission matrix through the synchronization client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/palisade-app/palisade/internal/permission"
	"github.com/palisade-app/palisade/internal/rbac"
	"github.com/palisade-app/palisade/internal/syncstate"
)

func main() {
	baseURL := flag.String("url", "http://127.0.0.1:8080", "API base URL")
	email := flag.String("email", os.Getenv("PALISADE_EMAIL"), "sign-in email")
	password := flag.String("password", os.Getenv("PALISADE_PASSWORD"), "sign-in password")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := syncstate.NewClient(*baseURL, nil, nil)
	if *email != "" {
		if err := client.SignIn(ctx, *email, *password); err != nil {
			fatalf("sign in: %v", err)
		}
		defer func() { _ = client.SignOut(context.Background()) }()
	}

	if err := run(ctx, client, args); err != nil {
		fatalf("%v", err)
	}
}

func run(ctx context.Context, client *syncstate.Client, args []string) error {
	switch cmd, rest := args[0], args[1:]; cmd {
	case "roles":
		return printRoles(ctx, client)
	case "users":
		return printUsers(ctx, client)
	case "catalog":
		return printCatalog(ctx, client)
	case "whoami":
		return printMe(ctx, client)
	case "grant":
		if len(rest) != 2 {
			return fmt.Errorf("usage: grant <role-id> <permission>")
		}
		perm, err := permission.Parse(rest[1])
		if err != nil {
			return err
		}
		return client.AssignPermission(ctx, rest[0], perm)
	case "revoke":
		if len(rest) != 2 {
			return fmt.Errorf("usage: revoke <role-id> <permission>")
		}
		perm, err := permission.Parse(rest[1])
		if err != nil {
			return err
		}
		return client.RemovePermission(ctx, rest[0], perm)
	case "toggle-row":
		if len(rest) != 2 {
			return fmt.Errorf("usage: toggle-row <role-id> <entity>")
		}
		return client.ToggleRow(ctx, rest[0], rest[1])
	case "toggle-column":
		if len(rest) != 2 {
			return fmt.Errorf("usage: toggle-column <role-id> <operation>")
		}
		if !permission.ValidOperation(rest[1]) {
			return fmt.Errorf("unknown operation %q", rest[1])
		}
		return client.ToggleColumn(ctx, rest[0], permission.Operation(rest[1]))
	case "toggle-all":
		if len(rest) != 1 {
			return fmt.Errorf("usage: toggle-all <role-id>")
		}
		return client.ToggleAll(ctx, rest[0])
	case "assign-role":
		if len(rest) != 2 {
			return fmt.Errorf("usage: assign-role <user-id> <role-id|->")
		}
		var roleID *string
		if rest[1] != "-" {
			roleID = &rest[1]
		}
		return client.AssignRoleToUser(ctx, rest[0], roleID)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printRoles(ctx context.Context, client *syncstate.Client) error {
	roles, err := client.Roles(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tENABLED\tPERMISSIONS")
	for _, role := range roles {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", role.ID, role.Name, role.Enabled, strings.Join(role.Permissions, ","))
	}
	return w.Flush()
}

func printUsers(ctx context.Context, client *syncstate.Client) error {
	users, err := client.Users(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE")
	for _, user := range users {
		roleID := "-"
		if user.RoleID != nil {
			roleID = *user.RoleID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", user.ID, user.Name, user.Email, roleID)
	}
	return w.Flush()
}

func printCatalog(ctx context.Context, client *syncstate.Client) error {
	entries, err := client.Permissions(ctx)
	if err != nil {
		return err
	}
	byEntity := make(map[string][]rbac.CatalogEntry)
	var order []string
	for _, entry := range entries {
		if _, ok := byEntity[entry.Entity]; !ok {
			order = append(order, entry.Entity)
		}
		byEntity[entry.Entity] = append(byEntity[entry.Entity], entry)
	}
	for _, entity := range order {
		ops := make([]string, 0, len(byEntity[entity]))
		for _, entry := range byEntity[entity] {
			ops = append(ops, entry.Operation)
		}
		fmt.Printf("%s: %s\n", entity, strings.Join(ops, ", "))
	}
	return nil
}

func printMe(ctx context.Context, client *syncstate.Client) error {
	me, err := client.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s>\n", me.User.Name, me.User.Email)
	fmt.Printf("administrator: %t, manager: %t\n", me.IsAdministrator, me.IsManager)
	fmt.Printf("permissions: %s\n", strings.Join(me.Permissions, ", "))
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: palisadectl [flags] <command>

commands:
  whoami                        show the signed-in principal
  roles                         list roles with their permissions
  users                         list users with their role
  catalog                       list the permission catalog
  grant <role-id> <permission>  assign a permission to a role
  revoke <role-id> <permission> remove a permission from a role
  toggle-row <role-id> <entity> flip a full entity row
  toggle-column <role-id> <op>  flip one operation across all entities
  toggle-all <role-id>          flip the entire matrix
  assign-role <user-id> <role>  set a user's role (- clears it)`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
