package cmd

import (
	"fmt"

	"github.com/BioHazard786/deskwarp/internal/addressbook"
	"github.com/BioHazard786/deskwarp/internal/ui"
	"github.com/spf13/cobra"
)

var bookCmd = &cobra.Command{
	Use:     "book",
	Aliases: []string{"addressbook"},
	Short:   "Manage remembered hosts",
}

var bookListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List remembered hosts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := openBook()
		if err != nil {
			return err
		}
		fmt.Println(ui.BookTable(book.List()))
		return nil
	},
}

var bookAddCmd = &cobra.Command{
	Use:   "add <room-id> [name]",
	Short: "Remember a host",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := openBook()
		if err != nil {
			return err
		}
		id, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		if _, err := book.Add(id); err != nil {
			return err
		}
		if len(args) == 2 {
			if err := book.Rename(id, args[1]); err != nil {
				return err
			}
		}
		ui.PrintSuccessf("Added %s", id.Grouped())
		return nil
	},
}

var bookRenameCmd = &cobra.Command{
	Use:   "rename <room-id> <name>",
	Short: "Rename a remembered host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := openBook()
		if err != nil {
			return err
		}
		id, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		if err := book.Rename(id, args[1]); err != nil {
			return err
		}
		ui.PrintSuccessf("Renamed %s to %s", id.Grouped(), args[1])
		return nil
	},
}

var bookRemoveCmd = &cobra.Command{
	Use:     "remove <room-id>",
	Aliases: []string{"rm"},
	Short:   "Forget a host and its saved password",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := openBook()
		if err != nil {
			return err
		}
		id, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		if err := book.Remove(id); err != nil {
			return err
		}
		ui.PrintSuccessf("Removed %s", id.Grouped())
		return nil
	},
}

func openBook() (*addressbook.Book, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	return addressbook.Open(dir)
}

func init() {
	rootCmd.AddCommand(bookCmd)
	bookCmd.AddCommand(bookListCmd, bookAddCmd, bookRenameCmd, bookRemoveCmd)
}
