package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	options    Options
	configFile string
	root       string
	model      string
	debug      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "article-writer",
		Short: "Generate a technical article with Gemini and publish it to GitHub",
		Long: `Generates one article for a content category (explicit, or rotated by day of year),
saves it under the site's content directory and commits it through the GitHub contents API.

The content directory is resolved from the directory of the binary, so build it into
the site root (go build -o article-writer) or pass --root. Under "go run" the binary
lives in a temporary directory and the saved article would be lost.

Environment:
  GEMINI_API_KEY  Gemini API key (always required)
  GITHUB_TOKEN    GitHub token (not needed with --dry-run or --local-only)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	rootCmd.Flags().StringVarP(&flags.options.Category, "category", "c", "", "Article category (default: rotate by day of year)")
	rootCmd.Flags().BoolVarP(&flags.options.DryRun, "dry-run", "n", false, "Generate and save, but do not upload")
	rootCmd.Flags().BoolVarP(&flags.options.LocalOnly, "local-only", "l", false, "Only save locally, skip GitHub entirely")
	rootCmd.Flags().StringVarP(&flags.options.Filename, "output", "o", "", "Output file name (without directory)")
	rootCmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "Path to a settings YAML file")
	rootCmd.Flags().StringVar(&flags.root, "root", "", "Site root the content path is relative to (default: executable directory)")
	rootCmd.Flags().StringVar(&flags.model, "model", "", "Gemini model override")
	rootCmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newCategoriesCmd(flags), newInitCmd())

	return rootCmd
}

func runGenerate(ctx context.Context, flags *rootFlags, stdout, stderr io.Writer) error {
	log := NewLogger(stderr, flags.debug)

	settings, err := LoadSettings(flags.configFile)
	if err != nil {
		return err
	}
	if flags.model != "" {
		settings.Generator.Model = flags.model
	}

	registry, err := NewRegistry(settings.Categories)
	if err != nil {
		return err
	}

	creds := CredentialsFromEnv()
	if err := creds.Validate(flags.options); err != nil {
		return err
	}

	root := flags.root
	if root == "" {
		root, err = executableDir()
		if err != nil {
			return err
		}
	}

	generator, err := NewGeminiGenerator(creds.GeminiAPIKey, settings, log)
	if err != nil {
		return err
	}
	publisher := NewGitHubPublisher(creds.GitHubToken, settings, log)

	fmt.Fprintln(stdout, strings.Repeat("=", 50))
	fmt.Fprintln(stdout, "📝 Technical article generator")
	fmt.Fprintln(stdout, strings.Repeat("=", 50))

	processor := NewArticleProcessor(settings, registry, generator, publisher, root, stdout, log)
	_, err = processor.Run(ctx, flags.options)
	return err
}

func newCategoriesCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the configured categories in rotation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := LoadSettings(flags.configFile)
			if err != nil {
				return err
			}
			registry, err := NewRegistry(settings.Categories)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"#", "ID", "Name", "Tags"})
			for i, c := range registry.All() {
				t.AppendRow(table.Row{i, c.ID, c.Name, strings.Join(c.Tags, ", ")})
			}
			t.Render()
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default settings and writer prompt for editing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := ensureConfigExists(dir)
			if err != nil {
				return err
			}
			if len(written) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration already present in %s\n", dir)
				return nil
			}
			for _, path := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Use it with --config %s\n", filepath.Join(dir, "settings.yaml"))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", defaultConfigDir, "Directory to write the configuration to")

	return cmd
}

// executableDir is the directory of the running binary, symlinks resolved
func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// reportError prints err the way the user should see it
func reportError(w io.Writer, err error) {
	var publishErr *PublishError
	var categoryErr *InvalidCategoryError
	switch {
	case errors.As(err, &publishErr):
		fmt.Fprintf(w, "❌ Upload failed: %v\n", publishErr.Err)
		fmt.Fprintf(w, "   The article is saved at %s, you can push it manually\n", publishErr.LocalPath)
	case errors.As(err, &categoryErr):
		fmt.Fprintf(w, "❌ Invalid category: %s\n", categoryErr.ID)
		fmt.Fprintf(w, "   Available categories: %s\n", strings.Join(categoryErr.Valid, ", "))
	default:
		fmt.Fprintf(w, "❌ Error: %v\n", err)
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: loading .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		reportError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
