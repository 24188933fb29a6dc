package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/splax/icm/pkg/config"
	"github.com/splax/icm/pkg/icm"
	"github.com/splax/icm/pkg/logger"
)

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "token":
		err = commandToken(args)
	case "project":
		err = commandProject(args)
	case "env":
		err = commandEnvironment(args)
	case "param":
		err = commandParameter(args)
	case "value":
		err = commandValue(args)
	case "keygen":
		err = commandKeygen(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// clientFlags are shared by every command that talks to the service. Defaults
// come from ICM_* environment variables.
type clientFlags struct {
	keyFile  *string
	baseURL  *string
	exchange *string
	claimSet *string
	timeout  *time.Duration
	debug    *bool
}

func registerClientFlags(fs *flag.FlagSet) *clientFlags {
	cfg := config.LoadClientConfig()
	return &clientFlags{
		keyFile:  fs.String("key", cfg.KeyFile, "Path to the service-account key file"),
		baseURL:  fs.String("base", cfg.BaseURL, "Resource base URL (derived from auth_url when empty)"),
		exchange: fs.String("exchange", cfg.ExchangeMode, "Token exchange endpoint (auth_url|token_path)"),
		claimSet: fs.String("claims", cfg.ClaimSet, "Assertion issuer claim (key_name|key_id)"),
		timeout:  fs.Duration("timeout", cfg.Timeout, "HTTP timeout"),
		debug:    fs.Bool("debug", cfg.Debug, "Log requests to stderr"),
	}
}

func (f *clientFlags) open() (*icm.Client, error) {
	claimSet, err := icm.ParseClaimSet(*f.claimSet)
	if err != nil {
		return nil, err
	}
	mode, err := icm.ParseExchangeMode(*f.exchange)
	if err != nil {
		return nil, err
	}
	opts := []icm.Option{
		icm.WithTimeout(*f.timeout),
		icm.WithClaimSet(claimSet),
		icm.WithExchangeMode(mode),
	}
	if strings.TrimSpace(*f.baseURL) != "" {
		opts = append(opts, icm.WithBaseURL(*f.baseURL))
	}
	if *f.debug {
		opts = append(opts, icm.WithLogger(logger.NewTo(os.Stderr, "icm-cli", slog.LevelDebug)))
	}
	return icm.Open(*f.keyFile, opts...)
}

func (f *clientFlags) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), *f.timeout+5*time.Second)
}

func commandToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	flags := registerClientFlags(fs)
	info := fs.Bool("info", false, "Print the identity behind the token instead of the token")
	fs.Parse(args)

	client, err := flags.open()
	if err != nil {
		return err
	}
	defer client.Close()
	ctx, cancel := flags.context()
	defer cancel()

	if *info {
		ti, err := client.TokenInfo(ctx)
		if err != nil {
			return err
		}
		return printJSON(ti)
	}
	token, err := client.AccessToken(ctx)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func commandProject(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: icm project [list|get|create|rename|delete]")
	}
	sub := args[0]
	fs := flag.NewFlagSet("project "+sub, flag.ExitOnError)
	flags := registerClientFlags(fs)
	name := fs.String("name", "", "Project name")
	newName := fs.String("new-name", "", "New project name (rename)")
	page := fs.Int("page", 1, "Page number (list)")
	per := fs.Int("per", icm.DefaultPerPage, "Page size (list)")
	fs.Parse(args[1:])

	client, err := flags.open()
	if err != nil {
		return err
	}
	defer client.Close()
	ctx, cancel := flags.context()
	defer cancel()

	switch sub {
	case "list":
		list, err := client.ListProjects(ctx, icm.PageRequest{Page: *page, Per: *per})
		if err != nil {
			return err
		}
		for _, p := range list.Projects {
			fmt.Printf("%d\t%s\t%s\n", p.ID, p.Name, p.UpdatedAt.Format(time.RFC3339))
		}
		printPagination(list.Pagination)
		return nil
	case "get":
		if err := required("--name", *name); err != nil {
			return err
		}
		p, err := client.GetProject(ctx, *name)
		if err != nil {
			return err
		}
		return printJSON(p)
	case "create":
		if err := required("--name", *name); err != nil {
			return err
		}
		p, err := client.CreateProject(ctx, *name)
		if err != nil {
			return err
		}
		fmt.Printf("project created: %s (%d)\n", p.Name, p.ID)
		return nil
	case "rename":
		if err := required("--name", *name, "--new-name", *newName); err != nil {
			return err
		}
		p, err := client.UpdateProject(ctx, *name, *newName)
		if err != nil {
			return err
		}
		fmt.Printf("project renamed: %s\n", p.Name)
		return nil
	case "delete":
		if err := required("--name", *name); err != nil {
			return err
		}
		if _, err := client.RemoveProject(ctx, *name); err != nil {
			return err
		}
		fmt.Println("project deleted")
		return nil
	default:
		return fmt.Errorf("unknown project command: %s", sub)
	}
}

func commandEnvironment(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: icm env [list|create|rename|delete] --project <name>")
	}
	sub := args[0]
	fs := flag.NewFlagSet("env "+sub, flag.ExitOnError)
	flags := registerClientFlags(fs)
	project := fs.String("project", "", "Project name")
	name := fs.String("name", "", "Environment name")
	newName := fs.String("new-name", "", "New environment name (rename)")
	page := fs.Int("page", 1, "Page number (list)")
	per := fs.Int("per", icm.DefaultPerPage, "Page size (list)")
	fs.Parse(args[1:])

	if err := required("--project", *project); err != nil {
		return err
	}
	client, err := flags.open()
	if err != nil {
		return err
	}
	defer client.Close()
	ctx, cancel := flags.context()
	defer cancel()

	switch sub {
	case "list":
		list, err := client.ListEnvironments(ctx, *project, icm.PageRequest{Page: *page, Per: *per})
		if err != nil {
			return err
		}
		for _, e := range list.Environments {
			fmt.Printf("%d\t%s\t%s\n", e.ID, e.Name, e.UpdatedAt.Format(time.RFC3339))
		}
		printPagination(list.Pagination)
		return nil
	case "create":
		if err := required("--name", *name); err != nil {
			return err
		}
		e, err := client.CreateEnvironment(ctx, *project, *name)
		if err != nil {
			return err
		}
		fmt.Printf("environment created: %s (%d)\n", e.Name, e.ID)
		return nil
	case "rename":
		if err := required("--name", *name, "--new-name", *newName); err != nil {
			return err
		}
		e, err := client.UpdateEnvironment(ctx, *project, *name, *newName)
		if err != nil {
			return err
		}
		fmt.Printf("environment renamed: %s\n", e.Name)
		return nil
	case "delete":
		if err := required("--name", *name); err != nil {
			return err
		}
		if _, err := client.RemoveEnvironment(ctx, *project, *name); err != nil {
			return err
		}
		fmt.Println("environment deleted")
		return nil
	default:
		return fmt.Errorf("unknown env command: %s", sub)
	}
}

func commandParameter(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: icm param [list|create|rename|delete] --project <name>")
	}
	sub := args[0]
	fs := flag.NewFlagSet("param "+sub, flag.ExitOnError)
	flags := registerClientFlags(fs)
	project := fs.String("project", "", "Project name")
	name := fs.String("name", "", "Parameter name")
	newName := fs.String("new-name", "", "New parameter name (rename)")
	page := fs.Int("page", 1, "Page number (list)")
	per := fs.Int("per", icm.DefaultPerPage, "Page size (list)")
	fs.Parse(args[1:])

	if err := required("--project", *project); err != nil {
		return err
	}
	client, err := flags.open()
	if err != nil {
		return err
	}
	defer client.Close()
	ctx, cancel := flags.context()
	defer cancel()

	switch sub {
	case "list":
		list, err := client.ListParameters(ctx, *project, icm.PageRequest{Page: *page, Per: *per})
		if err != nil {
			return err
		}
		for _, p := range list.Parameters {
			fmt.Printf("%d\t%s\t%s\n", p.ID, p.Name, p.UpdatedAt.Format(time.RFC3339))
		}
		printPagination(list.Pagination)
		return nil
	case "create":
		if err := required("--name", *name); err != nil {
			return err
		}
		p, err := client.CreateParameter(ctx, *project, *name)
		if err != nil {
			return err
		}
		fmt.Printf("parameter created: %s (%d)\n", p.Name, p.ID)
		return nil
	case "rename":
		if err := required("--name", *name, "--new-name", *newName); err != nil {
			return err
		}
		p, err := client.UpdateParameter(ctx, *project, *name, *newName)
		if err != nil {
			return err
		}
		fmt.Printf("parameter renamed: %s\n", p.Name)
		return nil
	case "delete":
		if err := required("--name", *name); err != nil {
			return err
		}
		if _, err := client.RemoveParameter(ctx, *project, *name); err != nil {
			return err
		}
		fmt.Println("parameter deleted")
		return nil
	default:
		return fmt.Errorf("unknown param command: %s", sub)
	}
}

func commandValue(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: icm value [get|set|update|delete] --project <name> --param <name> --env <name>")
	}
	sub := args[0]
	fs := flag.NewFlagSet("value "+sub, flag.ExitOnError)
	flags := registerClientFlags(fs)
	project := fs.String("project", "", "Project name")
	param := fs.String("param", "", "Parameter name")
	env := fs.String("env", "", "Environment name")
	value := fs.String("value", "", "Value to store (prompted when omitted)")
	fs.Parse(args[1:])

	if err := required("--project", *project, "--param", *param, "--env", *env); err != nil {
		return err
	}
	client, err := flags.open()
	if err != nil {
		return err
	}
	defer client.Close()

	switch sub {
	case "get":
		ctx, cancel := flags.context()
		defer cancel()
		v, err := client.GetValue(ctx, *project, *param, *env)
		if err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("no value set for %s in %s", *param, *env)
		}
		fmt.Println(v.Value)
		return nil
	case "set", "update":
		secret := *value
		if secret == "" {
			if secret, err = readSecret("Value: "); err != nil {
				return err
			}
		}
		ctx, cancel := flags.context()
		defer cancel()
		if sub == "set" {
			_, err = client.CreateValue(ctx, *project, *param, *env, secret)
		} else {
			_, err = client.UpdateValue(ctx, *project, *param, *env, secret)
		}
		if err != nil {
			return err
		}
		fmt.Println("value stored")
		return nil
	case "delete":
		ctx, cancel := flags.context()
		defer cancel()
		if _, err := client.RemoveValue(ctx, *project, *param, *env); err != nil {
			return err
		}
		fmt.Println("value deleted")
		return nil
	default:
		return fmt.Errorf("unknown value command: %s", sub)
	}
}

// readSecret prompts without echo on a terminal and reads stdin otherwise.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		bytes, err := term.ReadPassword(fd)
		fmt.Fprint(os.Stderr, "\n")
		if err != nil {
			return "", fmt.Errorf("read value: %w", err)
		}
		return string(bytes), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read value: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// required takes flag/value pairs and reports the first empty value.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%s is required", pairs[i])
		}
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPagination(p icm.PaginationInfo) {
	fmt.Fprintf(os.Stderr, "page %d/%d (%d total)\n", p.Page, p.TotalPages, p.Total)
}

func printUsage() {
	fmt.Printf("icm CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	icm token [--info] [--key icm_key.json]
	icm project list [--page N] [--per N]
	icm project get|create|delete --name <project>
	icm project rename --name <project> --new-name <project>
	icm env list|create|rename|delete --project <project> [--name <env>] [--new-name <env>]
	icm param list|create|rename|delete --project <project> [--name <param>] [--new-name <param>]
	icm value get|set|update|delete --project <project> --param <param> --env <env> [--value v]
	icm keygen --name <key-name> --id <key-id> --domain <access-domain> --auth-url <url>
	icm version

Every command that contacts the service accepts --key, --base, --exchange, --claims,
--timeout and --debug; defaults come from ICM_* environment variables.
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
