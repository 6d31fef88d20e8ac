package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"evalgo.org/nodelink/internal/auth"
	"evalgo.org/nodelink/internal/config"
	"evalgo.org/nodelink/internal/node"
	"evalgo.org/nodelink/internal/token"
	"evalgo.org/nodelink/models"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue and inspect tokens",
	Long:  `Issue node capability tokens and panel session tokens, and decode existing tokens`,
}

var issueTokenCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a node capability token",
	Long: `Issue a capability token signed with the secret of the node hosting a server.

Examples:
  # Session token with the user's configured grants
  nodelink token issue --server 8f1c... --user alice --type websocket

  # Explicit permissions
  nodelink token issue --server 8f1c... --user alice --perm control.console --perm file.read

  # File token for one path
  nodelink token issue --server 8f1c... --user alice --type file --action read --path /server.properties

  # Node-wide token (no server)
  nodelink token issue --node node1 --user alice --type docker --action prune`,
	RunE: runIssueToken,
}

var decodeTokenCmd = &cobra.Command{
	Use:   "decode [token]",
	Short: "Verify and print the claims of a capability token",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecodeToken,
}

var sessionTokenCmd = &cobra.Command{
	Use:   "session [user]",
	Short: "Issue a panel API session token",
	Long: `Issue a session token for the nodelink HTTP API, signed with security.jwt_secret.

Use it as "Authorization: Bearer <token>" when security.auth_enabled is true.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionToken,
}

var apiKeyCmd = &cobra.Command{
	Use:   "apikey [user]",
	Short: "Generate a panel API key",
	Long: `Generate a random API key and its bcrypt hash.

The key is printed once. Only the hash goes into security.api_keys; clients
send the key in the X-API-Key header.

Examples:
  nodelink token apikey alice
  nodelink token apikey ops --role admin`,
	Args: cobra.ExactArgs(1),
	RunE: runAPIKey,
}

var (
	tokenServer   string
	tokenUser     string
	tokenNode     string
	tokenPerms    []string
	tokenType     string
	tokenAction   string
	tokenPath     string
	tokenBackup   string
	tokenLifetime time.Duration
	tokenRoles    []string
	apiKeyRole    string
)

func init() {
	issueTokenCmd.Flags().StringVar(&tokenServer, "server", "", "server UUID the token is scoped to")
	issueTokenCmd.Flags().StringVar(&tokenUser, "user", "", "acting user UUID")
	issueTokenCmd.Flags().StringVar(&tokenNode, "node", "", "node id (default: node hosting --server)")
	issueTokenCmd.Flags().StringSliceVar(&tokenPerms, "perm", nil, "permission to include (repeatable)")
	issueTokenCmd.Flags().StringVar(&tokenType, "type", "", "token type: server, websocket, file, backup, docker, system, transfer")
	issueTokenCmd.Flags().StringVar(&tokenAction, "action", "", "operation-specific action")
	issueTokenCmd.Flags().StringVar(&tokenPath, "path", "", "file path for file tokens")
	issueTokenCmd.Flags().StringVar(&tokenBackup, "backup", "", "backup UUID for backup tokens")
	issueTokenCmd.Flags().DurationVar(&tokenLifetime, "lifetime", 0, "token lifetime (default: tokens.lifetime)")

	decodeTokenCmd.Flags().StringVar(&tokenServer, "server", "", "server UUID used to find the verifying node")
	decodeTokenCmd.Flags().StringVar(&tokenNode, "node", "", "node id whose secret verifies the token")

	sessionTokenCmd.Flags().StringSliceVar(&tokenRoles, "role", []string{models.RoleUser}, "role to grant (repeatable)")

	apiKeyCmd.Flags().StringVar(&apiKeyRole, "role", models.RoleUser, "role granted to the key: admin, user or viewer")

	tokenCmd.AddCommand(issueTokenCmd)
	tokenCmd.AddCommand(decodeTokenCmd)
	tokenCmd.AddCommand(sessionTokenCmd)
	tokenCmd.AddCommand(apiKeyCmd)
}

// issuerFor resolves the signing node from --node or --server.
func issuerFor(cmd *cobra.Command) (*token.Issuer, node.Target, error) {
	reg := newRegistry()
	lifetime := cfg.Tokens.Lifetime
	if tokenLifetime > 0 {
		lifetime = tokenLifetime
	}
	authority := node.NewAuthority(reg, reg,
		node.WithPanelURL(cfg.Panel.URL),
		node.WithTokenLifetime(lifetime),
	)

	var (
		t   node.Target
		err error
	)
	switch {
	case tokenNode != "":
		t, err = reg.Target(cmd.Context(), tokenNode)
	case tokenServer != "":
		t, err = reg.TargetForServer(cmd.Context(), tokenServer)
	default:
		return nil, node.Target{}, errors.New("either --server or --node is required")
	}
	if err != nil {
		return nil, node.Target{}, err
	}
	iss, err := authority.Issuer(t)
	return iss, t, err
}

func runIssueToken(cmd *cobra.Command, args []string) error {
	iss, t, err := issuerFor(cmd)
	if err != nil {
		return err
	}

	perms := tokenPerms
	if len(perms) == 0 && tokenServer != "" && tokenUser != "" {
		perms, _ = newRegistry().Permissions(cmd.Context(), tokenUser, tokenServer)
	}

	var tok string
	switch token.Operation(tokenType) {
	case token.OperationGeneric:
		tok, err = iss.ForServer(tokenServer, tokenUser, perms)
	case token.OperationServerControl:
		tok, err = iss.ForPower(tokenServer, tokenUser, models.PowerSignal(tokenAction))
	case token.OperationWebsocket:
		tok, err = iss.ForWebsocket(tokenServer, tokenUser, perms)
	case token.OperationFile:
		tok, err = iss.ForFile(tokenServer, tokenUser, tokenPath, tokenAction)
	case token.OperationBackup:
		tok, err = iss.ForBackup(tokenServer, tokenUser, tokenBackup, tokenAction)
	case token.OperationDocker:
		tok, err = iss.ForDocker(tokenUser, tokenAction)
	case token.OperationSystem:
		tok, err = iss.ForSystem(tokenUser, tokenAction)
	case token.OperationTransfer:
		tok, err = iss.ForTransfer(tokenServer, tokenUser)
	default:
		return fmt.Errorf("unknown token type %q", tokenType)
	}
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	claims, err := iss.Decode(tok)
	if err != nil {
		return fmt.Errorf("failed to read back token: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Node:        %s\n", t)
	fmt.Fprintf(out, "Permissions: %v\n", claims.Permissions)
	fmt.Fprintf(out, "Expires:     %s\n", claims.ExpiresAtTime().Format(time.RFC3339))
	fmt.Fprintf(out, "\n%s\n", tok)
	return nil
}

func runDecodeToken(cmd *cobra.Command, args []string) error {
	iss, _, err := issuerFor(cmd)
	if err != nil {
		return err
	}

	claims, err := iss.Decode(args[0])
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			if exp, ok := iss.ExpirationOf(args[0]); ok {
				return fmt.Errorf("token expired at %s", exp.Format(time.RFC3339))
			}
		}
		return err
	}

	return printJSON(cmd.OutOrStdout(), map[string]any{
		"subject":     claims.Subject,
		"user_uuid":   claims.UserUUID,
		"permissions": claims.Permissions,
		"type":        claims.Type,
		"operation":   claims.Operation,
		"file_path":   claims.FilePath,
		"backup_uuid": claims.BackupUUID,
		"issuer":      claims.Issuer,
		"audience":    claims.Audience,
		"id":          claims.ID,
		"issued_at":   claims.IssuedAtTime().Format(time.RFC3339),
		"expires_at":  claims.ExpiresAtTime().Format(time.RFC3339),
		"extra":       claims.Extra,
	})
}

func runSessionToken(cmd *cobra.Command, args []string) error {
	svc := auth.NewJWTService(cfg)
	tok, err := svc.GenerateToken(args[0], tokenRoles...)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}

func runAPIKey(cmd *cobra.Command, args []string) error {
	key, entry, err := newAPIKey(args[0], apiKeyRole)
	if err != nil {
		return err
	}

	snippet, err := yaml.Marshal(map[string]any{
		"security": map[string]any{"api_keys": []config.APIKeyConfig{entry}},
	})
	if err != nil {
		return fmt.Errorf("failed to encode config entry: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "API key: %s\n", key)
	fmt.Fprintf(out, "Hash:    %s\n", entry.Hash)
	fmt.Fprintf(out, "\nAdd to the config file:\n%s", snippet)
	return nil
}

// newAPIKey generates a key for user and the config entry holding its hash.
func newAPIKey(user, role string) (string, config.APIKeyConfig, error) {
	switch role {
	case models.RoleAdmin, models.RoleUser, models.RoleViewer:
	default:
		return "", config.APIKeyConfig{}, fmt.Errorf("unknown role %q", role)
	}

	key, err := auth.GenerateAPIKey()
	if err != nil {
		return "", config.APIKeyConfig{}, err
	}
	hash, err := auth.HashAPIKey(key)
	if err != nil {
		return "", config.APIKeyConfig{}, err
	}
	return key, config.APIKeyConfig{User: user, Hash: hash, Role: role}, nil
}
