package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boxesandglue/restyle"
	"github.com/boxesandglue/restyle/store"
)

var (
	// ErrEmptyInput is returned when a rule or domain to add is blank.
	ErrEmptyInput = errors.New("empty input")
	// ErrNoSuchRule is returned for a rule position outside the rule list.
	ErrNoSuchRule = errors.New("no such rule")
)

// withStore opens the configured store for the duration of fn.
func withStore(cmd *cobra.Command, ra *RootArgs, fn func(st store.Store) error) error {
	st, err := ra.OpenStore(cmd.Context())
	if err != nil {
		return err
	}

	err = fn(st)
	cerr := st.Close()
	if err != nil {
		return err
	}
	if cerr != nil {
		return fmt.Errorf("close store: %w", cerr)
	}

	return nil
}

func NewRulesCmd(ra *RootArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List and edit class rules",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print one 'selector .class' line per rule",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd, ra, func(st store.Store) error {
					cfg, err := st.Get(cmd.Context())
					if err != nil {
						return err
					}
					for _, r := range cfg.Rules {
						_, err = fmt.Fprintln(cmd.OutOrStdout(), r.String())
						if err != nil {
							return err
						}
					}

					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "add SELECTOR CLASS",
			Short: "Append a rule",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				rule := restyle.Rule{
					Selector: strings.TrimSpace(args[0]),
					AddClass: strings.TrimSpace(args[1]),
				}
				if rule.Selector == "" || rule.AddClass == "" {
					return fmt.Errorf("%w: selector and class are required", ErrEmptyInput)
				}
				err := rule.Validate()
				if err != nil {
					return err
				}

				return withStore(cmd, ra, func(st store.Store) error {
					cfg, err := st.Get(cmd.Context())
					if err != nil {
						return err
					}
					rules := append(slices.Clone(cfg.Rules), rule)

					return st.Set(cmd.Context(), restyle.Patch{Rules: &rules})
				})
			},
		},
		&cobra.Command{
			Use:   "rm POSITION",
			Short: "Remove the rule at POSITION, counting from 1 as printed by 'rules list'",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				pos, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid argument %q: %w", args[0], err)
				}

				return withStore(cmd, ra, func(st store.Store) error {
					cfg, err := st.Get(cmd.Context())
					if err != nil {
						return err
					}
					if pos < 1 || pos > len(cfg.Rules) {
						return fmt.Errorf("%w: %d of %d", ErrNoSuchRule, pos, len(cfg.Rules))
					}
					rules := slices.Delete(slices.Clone(cfg.Rules), pos-1, pos)

					return st.Set(cmd.Context(), restyle.Patch{Rules: &rules})
				})
			},
		},
	)

	return cmd
}

func NewCSSCmd(ra *RootArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "css",
		Short: "Show and replace the custom CSS",
	}

	var outline bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the custom CSS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, ra, func(st store.Store) error {
				cfg, err := st.Get(cmd.Context())
				if err != nil {
					return err
				}
				out := cfg.CustomCSS
				if outline {
					out = restyle.ParseStylesheet(cfg.CustomCSS).String()
				}
				_, err = io.WriteString(cmd.OutOrStdout(), out)

				return err
			})
		},
	}
	show.Flags().BoolVar(&outline, "outline", false, "Print the parsed block outline instead")

	set := &cobra.Command{
		Use:   "set FILE",
		Short: "Replace the custom CSS with the contents of FILE, or stdin for -",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read css: %w", err)
			}
			css := string(data)

			return withStore(cmd, ra, func(st store.Store) error {
				return st.Set(cmd.Context(), restyle.Patch{CustomCSS: &css})
			})
		},
	}

	cmd.AddCommand(show, set)

	return cmd
}

func NewDomainsCmd(ra *RootArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domains",
		Short: "List and edit the allow-list",
	}

	edit := func(cmd *cobra.Command, fn func([]string) []string) error {
		return withStore(cmd, ra, func(st store.Store) error {
			cfg, err := st.Get(cmd.Context())
			if err != nil {
				return err
			}
			domains := fn(slices.Clone(cfg.AllowedDomains))

			return st.Set(cmd.Context(), restyle.Patch{AllowedDomains: &domains})
		})
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print the allow-list, one entry per line",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd, ra, func(st store.Store) error {
					cfg, err := st.Get(cmd.Context())
					if err != nil {
						return err
					}
					for _, d := range cfg.AllowedDomains {
						_, err = fmt.Fprintln(cmd.OutOrStdout(), d)
						if err != nil {
							return err
						}
					}

					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "add HOSTNAME",
			Short: "Allow a host; entries match any hostname containing them",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				entry := strings.TrimSpace(args[0])
				if entry == "" {
					return fmt.Errorf("%w: hostname is required", ErrEmptyInput)
				}

				return edit(cmd, func(domains []string) []string {
					if slices.Contains(domains, entry) {
						return domains
					}

					return append(domains, entry)
				})
			},
		},
		&cobra.Command{
			Use:   "rm HOSTNAME",
			Short: "Remove an allow-list entry",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				entry := strings.TrimSpace(args[0])

				return edit(cmd, func(domains []string) []string {
					return slices.DeleteFunc(domains, func(d string) bool {
						return d == entry
					})
				})
			},
		},
	)

	return cmd
}

func NewSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of configuration files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := store.Schema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))

			return err
		},
	}
}
