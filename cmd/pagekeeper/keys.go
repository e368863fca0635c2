package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vango-dev/pagekeeper/internal/errors"
	"github.com/vango-dev/pagekeeper/pkg/identity"
	"github.com/vango-dev/pagekeeper/pkg/routepath"
)

func keysCmd() *cobra.Command {
	var (
		policyName string
		epoch      uint64
		strict     bool
	)

	cmd := &cobra.Command{
		Use:   "keys <fullPath>...",
		Short: "Show cache and mount keys for paths",
		Long: `Print the cache key and mount key each fullPath gets under a key
policy, and list the paths whose cache keys collide.

The sanitized policy replaces every non-alphanumeric byte with "-", so
/a-b and /a_b share a key and could not be open at the same time.

Examples:
  pagekeeper keys /users /users?page=2
  pagekeeper keys --policy exact /a-b /a_b
  pagekeeper keys --strict /a-b /a_b`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := identity.PolicyByName(policyName)
			if err != nil {
				return errors.New("X131").WithDetail(err.Error())
			}
			collisions, err := printKeys(cmd.OutOrStdout(), policy, epoch, args)
			if err != nil {
				return err
			}
			if strict && len(collisions) > 0 {
				return errors.New("P002").
					WithDetail(fmt.Sprintf("%d colliding cache keys under the %s policy", len(collisions), policy.Name())).
					WithSuggestion("Use the exact key policy or rename the routes")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&policyName, "policy", identity.PolicySanitized, "Cache key policy (sanitized or exact)")
	cmd.Flags().Uint64Var(&epoch, "epoch", 0, "Refresh epoch used for mount keys")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error when keys collide")

	return cmd
}

// printKeys writes a key table for fullPaths and returns their collisions.
func printKeys(w io.Writer, policy identity.Policy, epoch uint64, fullPaths []string) ([]identity.Collision, error) {
	canonical := make([]string, 0, len(fullPaths))
	for _, fp := range fullPaths {
		res, err := routepath.Canonicalize(fp)
		if err != nil {
			return nil, errors.New("X131").WithDetail(fmt.Sprintf("%q: %v", fp, err))
		}
		canonical = append(canonical, res.FullPath())
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FULLPATH\tCACHE KEY\tMOUNT KEY")
	for _, fp := range canonical {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", fp, policy.CacheKey(fp), policy.MountKey(fp, epoch))
	}
	if err := tw.Flush(); err != nil {
		return nil, err
	}

	collisions := identity.Collisions(policy, canonical...)
	if len(collisions) == 0 {
		fmt.Fprintf(w, "\nno collisions under the %s policy\n", policy.Name())
		return nil, nil
	}
	fmt.Fprintf(w, "\n%d collisions under the %s policy:\n", len(collisions), policy.Name())
	for _, c := range collisions {
		fmt.Fprintf(w, "  %s: %s\n", c.Key, strings.Join(c.FullPaths, ", "))
	}
	return collisions, nil
}
