package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"crmflow/internal/core/security"
)

var defaultsOnly bool

var permissionsCmd = &cobra.Command{
	Use:   "permissions [role]",
	Short: "Print the effective permission matrix",
	Long: `Prints the permissions of every role, or of one role, including runtime
overrides stored in the database. With --defaults the built-in table is
printed without connecting.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roles := security.AllRoles
		if len(args) == 1 {
			role, ok := security.ParseRole(args[0])
			if !ok {
				return fmt.Errorf("unknown role %q (one of %s)", args[0], roleList())
			}
			roles = []security.Role{role}
		}

		matrix := make(map[security.Role]security.RolePermissions, len(roles))
		if defaultsOnly {
			for _, r := range roles {
				matrix[r] = security.GetPermissions(r)
			}
			return writeMatrix(cmd.OutOrStdout(), roles, matrix)
		}

		a, ctx, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		for _, r := range roles {
			rp, err := a.Permissions.Permissions(ctx, r)
			if err != nil {
				return err
			}
			matrix[r] = rp
		}
		return writeMatrix(cmd.OutOrStdout(), roles, matrix)
	},
}

func init() {
	permissionsCmd.Flags().BoolVar(&defaultsOnly, "defaults", false, "print the built-in table only")
}

// writeMatrix prints role -> permission -> allowed as YAML, in table order.
func writeMatrix(w io.Writer, roles []security.Role, matrix map[security.Role]security.RolePermissions) error {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, r := range roles {
		perms := &yaml.Node{Kind: yaml.MappingNode}
		for _, p := range security.AllPermissions {
			perms.Content = append(perms.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: p.Key()},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: fmt.Sprint(matrix[r].Has(p))},
			)
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: string(r)}, perms)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
