package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"heliodata/pkg/auth"
	"heliodata/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage archive identities",
	Long: `Manage the identities heliodata passes to archives, such as the e-mail
address registered with JSOC.

Identities are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (HELIODATA_IDENTITY, HELIODATA_IDENTITY_<ARCHIVE>)`,
}

var setAuthCmd = &cobra.Command{
	Use:   "set [archive]",
	Short: "Store an identity for an archive",
	Long: `Store an identity for an archive. Without an archive name the identity
becomes the default used by every mission that has none of its own.`,
	Example: `  heliodata auth set jsoc
  heliodata auth set`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthSet,
}

var showAuthCmd = &cobra.Command{
	Use:   "show",
	Short: "List stored identities (masked)",
	Args:  cobra.NoArgs,
	RunE:  runAuthShow,
}

var deleteAuthCmd = &cobra.Command{
	Use:   "delete <archive>",
	Short: "Remove a stored identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthDelete,
}

var guideAuthCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain which archives need an identity",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowIdentityGuide()
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(setAuthCmd)
	authCmd.AddCommand(showAuthCmd)
	authCmd.AddCommand(deleteAuthCmd)
	authCmd.AddCommand(guideAuthCmd)
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	archiveName := auth.DefaultArchive
	if len(args) > 0 {
		archiveName = strings.ToLower(strings.TrimSpace(args[0]))
	}

	reader := bufio.NewReader(os.Stdin)
	if existing, _ := manager.Retrieve(archiveName); existing != nil {
		fmt.Printf("An identity for '%s' already exists (%s). Replace it? (y/N): ", archiveName, auth.Mask(existing.Value))
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Printf("Identity for %s (hidden): ", archiveName)
	value, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read identity: %w", err)
	}
	if value == "" {
		return fmt.Errorf("identity must not be empty")
	}

	id := &auth.Identity{
		Archive:      archiveName,
		Value:        value,
		LastModified: time.Now(),
	}
	if err := manager.Store(id); err != nil {
		return fmt.Errorf("failed to store identity: %w", err)
	}

	ui.PrintSuccess(fmt.Sprintf("Identity stored for %s: %s", archiveName, auth.Mask(value)))
	return nil
}

func runAuthShow(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	ids, err := manager.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		ui.PrintWarning("No identities stored; run 'heliodata auth set'")
		return nil
	}

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		safe := auth.Sanitize(id)
		modified := ""
		if !safe.LastModified.IsZero() {
			modified = safe.LastModified.Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{safe.Archive, safe.Value, modified})
	}
	ui.PrintTable([]string{"archive", "identity", "modified"}, rows)
	return nil
}

func runAuthDelete(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	archiveName := strings.ToLower(strings.TrimSpace(args[0]))
	if err := manager.Delete(archiveName); err != nil {
		return fmt.Errorf("failed to remove identity for %s: %w", archiveName, err)
	}
	ui.PrintSuccess("Identity removed: " + archiveName)
	return nil
}

// readSecret reads a line without echo when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
