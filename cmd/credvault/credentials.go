package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/credvault/credvault/pkg/record"
	"github.com/credvault/credvault/pkg/vault"
)

// Flags for add and update.
var (
	credUsername string
	credPassword string
	credWebsite  string
	credCategory string
	credNotes    string
	credFavorite bool
)

// Flags for get.
var getShowPassword bool

// Flags for list.
var listCategory string

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)

	for _, c := range []*cobra.Command{addCmd, updateCmd} {
		c.Flags().StringVarP(&credUsername, "username", "u", "", "Username or login")
		c.Flags().StringVarP(&credPassword, "password", "p", "", "Password (prompted when omitted)")
		c.Flags().StringVarP(&credWebsite, "website", "w", "", "Website URL")
		c.Flags().StringVarP(&credCategory, "category", "c", "other", "Category: social, email, banking, shopping, work, other")
		c.Flags().StringVarP(&credNotes, "notes", "n", "", "Free-form notes")
		c.Flags().BoolVarP(&credFavorite, "favorite", "f", false, "Mark as favorite")
	}

	getCmd.Flags().BoolVar(&getShowPassword, "show-password", false, "Print the password instead of masking it")
	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "Only show one category")
}

// buildCredential assembles a credential from flags, prompting for the
// password when it was not passed on the command line.
func buildCredential(name string) (*record.Credential, error) {
	category, err := record.ParseCategory(credCategory)
	if err != nil {
		return nil, err
	}

	password := credPassword
	if password == "" {
		password, err = readPassword("Enter credential password: ")
		if err != nil {
			return nil, err
		}
	}

	return &record.Credential{
		Name:     name,
		Username: credUsername,
		Password: password,
		Website:  credWebsite,
		Category: category,
		Notes:    credNotes,
		Favorite: credFavorite,
	}, nil
}

// resolveEntry finds an entry by id, falling back to a case-insensitive name
// lookup so users can say 'credvault get GitHub'.
func resolveEntry(idOrName string) (*vault.Entry, error) {
	e, err := v.Get(idOrName)
	if err == nil {
		return e, nil
	}

	entries, _, listErr := v.List("")
	if listErr != nil {
		return nil, listErr
	}
	var matches []*vault.Entry
	for _, candidate := range entries {
		if strings.EqualFold(candidate.Credential.Name, idOrName) {
			matches = append(matches, candidate)
		}
	}
	switch len(matches) {
	case 0:
		return nil, err
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%d credentials named %q, use the id instead", len(matches), idOrName)
	}
}

var addCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		c, err := buildCredential(args[0])
		if err != nil {
			return err
		}
		e, err := v.Create(c)
		if err != nil {
			return err
		}
		fmt.Printf("Added %q (%s)\n", c.Name, e.ID)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id|name]",
	Short: "Show a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		e, err := resolveEntry(args[0])
		if err != nil {
			return err
		}
		printEntry(e, getShowPassword)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		entries, failures, err := v.List(listCategory)
		if err != nil {
			return err
		}
		printEntryTable(entries)
		for _, f := range failures {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: record %s is unreadable: %v\n", f.ID, f.Err)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search credentials by name, username, website, or notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		entries, err := v.Search(args[0])
		if err != nil {
			return err
		}
		printEntryTable(entries)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update [id|name]",
	Short: "Replace a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		existing, err := resolveEntry(args[0])
		if err != nil {
			return err
		}
		c, err := buildCredential(existing.Credential.Name)
		if err != nil {
			return err
		}
		if _, err := v.Update(existing.ID, c); err != nil {
			return err
		}
		fmt.Printf("Updated %q\n", c.Name)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id|name]",
	Short: "Delete a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}

		e, err := resolveEntry(args[0])
		if err != nil {
			return err
		}
		if err := v.Delete(e.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted %q\n", e.Credential.Name)
		return nil
	},
}

func printEntry(e *vault.Entry, showPassword bool) {
	c := e.Credential
	fmt.Printf("Name:     %s\n", c.Name)
	fmt.Printf("Id:       %s\n", e.ID)
	if c.Username != "" {
		fmt.Printf("Username: %s\n", c.Username)
	}
	if showPassword {
		fmt.Printf("Password: %s\n", c.Password)
	} else {
		fmt.Printf("Password: ******** (use --show-password)\n")
	}
	if c.Website != "" {
		fmt.Printf("Website:  %s\n", c.Website)
	}
	fmt.Printf("Category: %s\n", c.Category)
	if c.Notes != "" {
		fmt.Printf("Notes:    %s\n", c.Notes)
	}
	if c.Favorite {
		fmt.Println("Favorite: yes")
	}
	fmt.Printf("Created:  %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Printf("Modified: %s\n", e.ModifiedAt.Local().Format("2006-01-02 15:04"))
}

func printEntryTable(entries []*vault.Entry) {
	if len(entries) == 0 {
		fmt.Println("No credentials found")
		return
	}
	for _, e := range entries {
		c := e.Credential
		marker := " "
		if c.Favorite {
			marker = "*"
		}
		line := fmt.Sprintf("%s %-24s %-12s %s", marker, c.Name, c.Category, c.Username)
		fmt.Println(strings.TrimRight(line, " "))
	}
	fmt.Printf("\nTotal: %d\n", len(entries))
}
