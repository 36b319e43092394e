package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/namelens/chatgate/internal/ailink"
	"github.com/namelens/chatgate/internal/config"
	"github.com/namelens/chatgate/internal/output"
)

var (
	credentialLabel  string
	credentialFormat string
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"keys"},
	Short:   "Manage stored API keys",
	Long: `Manage API keys kept in the local store.

Stored keys rank below --api-key and above config-file and environment keys.
Key values are never printed.`,
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set [provider]",
	Short: "Store an API key (read from the terminal or stdin)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		provider, err := credentialProvider(cfg, args)
		if err != nil {
			return err
		}

		key, err := readAPIKey(cmd.InOrStdin(), cmd.ErrOrStderr(), provider, stdinIsTerminal())
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		if err := db.SetCredential(cmd.Context(), provider, credentialLabel, key, time.Now()); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "API key for %s stored.\n", provider)
		return err
	},
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored API keys (providers only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(credentialFormat)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListCredentials(cmd.Context())
		if err != nil {
			return err
		}
		rendered, err := output.NewFormatter(format).FormatCredentials(entries)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	},
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete [provider]",
	Short: "Delete a stored API key",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		provider, err := credentialProvider(cfg, args)
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		deleted, err := db.DeleteCredential(cmd.Context(), provider)
		if err != nil {
			return err
		}
		if !deleted {
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "No stored API key for %s.\n", provider)
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "API key for %s deleted.\n", provider)
		return err
	},
}

var credentialsWhichCmd = &cobra.Command{
	Use:   "which",
	Short: "Show which source would supply the API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, closeLog := componentLogger(cfg)
		defer func() { _ = closeLog() }()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		session, err := openChatSession(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = session.Close() }()

		source, err := session.Service.CredentialSource(ctx)
		if err != nil {
			return err
		}
		logger.Debug("credential lookup", zap.String("provider", session.Service.ProviderID()), zap.String("source", source))
		if source == "" {
			source = "none (demo replies)"
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", session.Service.ProviderID(), source)
		return err
	},
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsSetCmd, credentialsListCmd, credentialsDeleteCmd, credentialsWhichCmd)

	credentialsSetCmd.Flags().StringVar(&credentialLabel, "label", "", "free-form label shown by list")
	credentialsListCmd.Flags().StringVar(&credentialFormat, "output-format", string(output.FormatTable), "Output format: text|table|json|markdown")
}

// credentialProvider defaults to the provider the config resolves to.
func credentialProvider(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	provider, err := ailink.NewRegistry(cfg.AILink).Resolve("")
	if err != nil {
		return "", fmt.Errorf("%w: %w", errConfig, err)
	}
	return provider.ProviderID, nil
}

// readAPIKey reads without echo from a terminal, otherwise the first line of
// in.
func readAPIKey(in io.Reader, prompt io.Writer, provider string, interactive bool) (string, error) {
	var key string
	if interactive {
		_, _ = fmt.Fprintf(prompt, "Enter API key for %s: ", provider)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read key: %w", err)
		}
		key = string(raw)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read key: %w", err)
		}
		key = line
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("API key cannot be empty")
	}
	return key, nil
}
