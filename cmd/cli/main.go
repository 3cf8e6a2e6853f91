package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"user-portal/internal/client"
	"user-portal/internal/config"
)

const usage = `usage: portalctl <command> [args]

commands:
  login <email>            authenticate and persist the session token
  logout                   clear the persisted session
  me                       show the current account
  users                    list accounts (admin)
  create <username> <email> [role]   create an account (admin, password prompted)
  update <id> [-username u] [-email e] [-role r] [-password]   update an account (admin)
  delete <id>              delete an account (admin)
  report                   show the activity report (admin)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}

	api, err := client.New(cfg.Client.BaseURL)
	if err != nil {
		fatal(err)
	}

	tokenPath := cfg.Client.TokenPath
	if tokenPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fatal(err)
		}
		tokenPath = filepath.Join(home, ".user-portal", "token")
	}
	session := client.NewSession(api, client.NewTokenStore(tokenPath))

	ctx := context.Background()
	if err := run(ctx, session, api, os.Args[1], os.Args[2:]); err != nil {
		fatal(err)
	}
}

func run(ctx context.Context, session *client.Session, api *client.Client, command string, args []string) error {
	switch command {
	case "login":
		if len(args) != 1 {
			return fmt.Errorf("login requires an email argument")
		}
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}
		user, err := session.Login(ctx, args[0], password)
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s (%s)\n", user.Username, user.Role)
		return nil

	case "logout":
		if err := session.Logout(); err != nil {
			return err
		}
		fmt.Println("logged out")
		return nil
	}

	// everything else needs a live session
	user, err := session.Restore(ctx)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("not logged in; run: portalctl login <email>")
	}

	switch command {
	case "me":
		printUser(*user)
		return nil

	case "users":
		users, err := api.ListUsers(ctx, session.Token())
		if err != nil {
			return err
		}
		for _, u := range users {
			printUser(u)
		}
		return nil

	case "create":
		if len(args) < 2 {
			return fmt.Errorf("create requires username and email arguments")
		}
		params := client.CreateUserParams{Username: args[0], Email: args[1]}
		if len(args) > 2 {
			params.Role = args[2]
		}
		password, err := promptPassword("New account password: ")
		if err != nil {
			return err
		}
		params.Password = password
		created, err := api.CreateUser(ctx, session.Token(), params)
		if err != nil {
			return err
		}
		printUser(created)
		return nil

	case "update":
		if len(args) < 1 {
			return fmt.Errorf("update requires an id argument")
		}
		fs := flag.NewFlagSet("update", flag.ContinueOnError)
		username := fs.String("username", "", "new username")
		email := fs.String("email", "", "new email")
		role := fs.String("role", "", "new role")
		promptPw := fs.Bool("password", false, "prompt for a new password")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		params := client.UpdateUserParams{}
		if *username != "" {
			params.Username = username
		}
		if *email != "" {
			params.Email = email
		}
		if *role != "" {
			params.Role = role
		}
		if *promptPw {
			password, err := promptPassword("New password: ")
			if err != nil {
				return err
			}
			params.Password = &password
		}
		updated, err := api.UpdateUser(ctx, session.Token(), args[0], params)
		if err != nil {
			return err
		}
		printUser(updated)
		return nil

	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("delete requires an id argument")
		}
		if err := api.DeleteUser(ctx, session.Token(), args[0]); err != nil {
			return err
		}
		fmt.Println("deleted")
		return nil

	case "report":
		rows, err := api.Report(ctx, session.Token())
		if err != nil {
			return err
		}
		for _, row := range rows {
			inactive := "never active"
			if row.DaysInactive != nil {
				inactive = fmt.Sprintf("%d days inactive", *row.DaysInactive)
			}
			fmt.Printf("%s\t%s\t%s\t%s\n", row.ID, row.Username, row.Role, inactive)
		}
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(password)), nil
}

func printUser(u client.User) {
	fmt.Printf("%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, u.Role)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "portalctl: %v\n", err)
	os.Exit(1)
}
