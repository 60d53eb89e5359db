package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"dropletup/internal/provisioning"
	sshkeys "dropletup/internal/ssh"

	"github.com/spf13/cobra"
)

var keysImportFlags struct {
	name     string
	generate bool
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage SSH keys registered to the account",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List account SSH keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		keys, err := client.ListSSHKeys(cmd.Context())
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No SSH keys registered.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), keysTable(keys))
		return nil
	},
}

var keysImportCmd = &cobra.Command{
	Use:   "import <public key file>",
	Short: "Upload a public key to the account",
	Long: `Upload an OpenSSH public key to the account. With --generate the argument is
treated as a private key path and an ed25519 key pair is created there if it
does not exist yet.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		return importKey(cmd.Context(), cmd, client, args[0])
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysListCmd, keysImportCmd)

	keysImportCmd.Flags().StringVar(&keysImportFlags.name, "name", "", "Key name in the account (defaults to the key comment)")
	keysImportCmd.Flags().BoolVar(&keysImportFlags.generate, "generate", false, "Generate the key pair if it does not exist")
}

func loadImportKey(path string) (*sshkeys.PublicKey, error) {
	if keysImportFlags.generate {
		kp, err := sshkeys.GetOrGenerateKeyPair(path, "dropletup")
		if err != nil {
			return nil, err
		}
		return kp.PublicKey, nil
	}
	return sshkeys.LoadPublicKey(path)
}

func importKey(ctx context.Context, cmd *cobra.Command, client provisioning.Client, path string) error {
	pub, err := loadImportKey(path)
	if err != nil {
		return &provisioning.ConfigurationError{Reason: "cannot read public key", Err: err}
	}

	out := cmd.OutOrStdout()

	keys, err := client.ListSSHKeys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.Fingerprint == pub.Fingerprint {
			fmt.Fprintf(out, "Key already registered as '%s' (fingerprint %s).\n", k.Name, k.Fingerprint)
			return nil
		}
	}

	name := keysImportFlags.name
	if name == "" {
		name = pub.Comment
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".pub")
	}

	key, err := client.CreateSSHKey(ctx, name, pub.String())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Imported key '%s' (ID %d, fingerprint %s).\n", key.Name, key.ID, key.Fingerprint)
	return nil
}
