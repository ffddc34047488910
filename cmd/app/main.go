package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/starford/echoes/internal"
	"github.com/starford/echoes/internal/draftfile"
	"github.com/starford/echoes/internal/models"
	"github.com/starford/echoes/internal/remotesync"
	pkgconfig "github.com/starford/echoes/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), "config/config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	return internal.RunMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithCredential(remotesync.Credential(cmd.String("token"))),
	)
}

func runAdd(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	draft, err := readDraft(cmd.String("body"), cmd.String("body-file"))
	if err != nil {
		return err
	}
	override(&draft.Title, cmd.String("title"))
	override(&draft.Subtitle, cmd.String("subtitle"))
	override(&draft.Foreword, cmd.String("foreword"))
	override(&draft.ThumbnailURL, cmd.String("thumbnail"))

	token := cmd.String("token")
	if token == "" {
		if token, err = promptToken(); err != nil {
			return err
		}
	}

	res, err := internal.AddEntry(ctx, draft, cmd.Bool("wait"),
		internal.WithConfig(cfg),
		internal.WithCredential(remotesync.Credential(token)),
	)
	if res != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
	}
	return err
}

func override(field *string, flag string) {
	if flag != "" {
		*field = flag
	}
}

// readDraft returns a draft holding the inline body, or the draft read from
// path ("-" reads stdin). Files may carry YAML frontmatter for the other
// fields.
func readDraft(inline, path string) (models.Draft, error) {
	var data []byte
	var err error
	switch {
	case inline != "" && path != "":
		return models.Draft{}, errors.New("use either --body or --body-file")
	case path == "":
		return models.Draft{Body: inline}, nil
	case path == "-":
		data, err = io.ReadAll(os.Stdin)
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return models.Draft{}, fmt.Errorf("read body file: %w", err)
	}
	return draftfile.Parse(data)
}

// promptToken asks for the storage token without echo. Without a terminal
// the token stays empty and the commit is refused.
func promptToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprint(os.Stderr, "Storage token: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func main() {
	cmd := &cli.Command{
		Name:   "echoes",
		Usage:  "Catalog of short stories with fragment navigation and commits to a version-controlled store",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Storage token for commits (mcp and add)",
				Sources: cli.EnvVars("ECHOES_TOKEN"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools on stdin/stdout",
				Action: runMCP,
			},
			{
				Name:   "add",
				Usage:  "Append one entry and commit the catalog",
				Action: runAdd,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Entry title (overrides the file)"},
					&cli.StringFlag{Name: "subtitle", Usage: "One-line subtitle"},
					&cli.StringFlag{Name: "foreword", Usage: "Optional introduction"},
					&cli.StringFlag{Name: "thumbnail", Usage: "Thumbnail image URL"},
					&cli.StringFlag{Name: "body", Aliases: []string{"b"}, Usage: "Story text"},
					&cli.StringFlag{Name: "body-file", Aliases: []string{"f"}, Usage: "Read a Markdown draft with optional frontmatter, - for stdin"},
					&cli.BoolFlag{Name: "wait", Usage: "Wait until the entry is published"},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
