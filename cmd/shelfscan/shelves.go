package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shelfscan/shelfscan/internal/collection"
	"github.com/shelfscan/shelfscan/internal/models"
	"github.com/shelfscan/shelfscan/internal/resources"
)

func parseID(arg, what string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}

func shelvesController() *resources.Shelves {
	return resources.NewShelves(current.gw, current.manager, current.confirm, current.log)
}

func newShelvesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shelves",
		Short: "Manage your bookshelves",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List your bookshelves",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.requireSession(cmd.Context()); err != nil {
				return err
			}
			shelves := shelvesController()
			if err := shelves.Load(cmd.Context()); err != nil {
				return err
			}
			items := shelves.Items()
			if len(items) == 0 {
				fmt.Println("You don't have any bookshelves yet.")
				return nil
			}
			for _, s := range items {
				fmt.Printf("%4d  %s (%d book(s))\n", s.ID, s.Name, s.BookCount)
				if s.Description != "" {
					fmt.Printf("      %s\n", s.Description)
				}
			}
			return nil
		},
	}

	var createDesc string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a bookshelf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.requireSession(cmd.Context()); err != nil {
				return err
			}
			shelf, err := shelvesController().Create(cmd.Context(), models.ShelfPayload{
				Name:        args[0],
				Description: createDesc,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created shelf %q (id %d)\n", shelf.Name, shelf.ID)
			return nil
		},
	}
	create.Flags().StringVarP(&createDesc, "description", "d", "", "shelf description")

	var updateDesc string
	update := &cobra.Command{
		Use:   "update <id> <name>",
		Short: "Rename or re-describe a bookshelf",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.requireSession(cmd.Context()); err != nil {
				return err
			}
			id, err := parseID(args[0], "shelf")
			if err != nil {
				return err
			}
			detail := resources.NewShelfDetail(id, current.gw, current.manager, current.confirm, current.log)
			shelf, err := detail.UpdateShelf(cmd.Context(), models.ShelfPayload{
				Name:        args[1],
				Description: updateDesc,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Updated shelf %q\n", shelf.Name)
			return nil
		},
	}
	update.Flags().StringVarP(&updateDesc, "description", "d", "", "shelf description")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a bookshelf and its books",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.requireSession(cmd.Context()); err != nil {
				return err
			}
			id, err := parseID(args[0], "shelf")
			if err != nil {
				return err
			}
			shelves := shelvesController()
			if err := shelves.Load(cmd.Context()); err != nil {
				return err
			}
			if err := shelves.Remove(cmd.Context(), id); err != nil {
				if errors.Is(err, collection.ErrConfirmationDeclined) {
					fmt.Println("Aborted.")
					return nil
				}
				return err
			}
			fmt.Println("Shelf deleted")
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a bookshelf and its books",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.requireSession(cmd.Context()); err != nil {
				return err
			}
			id, err := parseID(args[0], "shelf")
			if err != nil {
				return err
			}
			detail := resources.NewShelfDetail(id, current.gw, current.manager, current.confirm, current.log)
			if err := detail.Load(cmd.Context()); err != nil {
				return err
			}
			shelf := detail.Shelf()
			fmt.Printf("%s (id %d)\n", shelf.Name, shelf.ID)
			if shelf.Description != "" {
				fmt.Println(shelf.Description)
			}
			books := detail.Books()
			if len(books) == 0 {
				fmt.Println("No books on this shelf yet.")
				return nil
			}
			for _, b := range books {
				line := fmt.Sprintf("%4d  %s", b.ID, b.Title)
				if b.Author != "" {
					line += " by " + b.Author
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.AddCommand(list, create, update, del, show)
	return cmd
}

func newBooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "Manage books on a shelf",
	}

	var author, isbn string
	add := &cobra.Command{
		Use:   "add <shelf-id> <title>",
		Short: "Add a book to a shelf",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.requireSession(cmd.Context()); err != nil {
				return err
			}
			shelfID, err := parseID(args[0], "shelf")
			if err != nil {
				return err
			}
			detail := resources.NewShelfDetail(shelfID, current.gw, current.manager, current.confirm, current.log)
			book, err := detail.AddBook(cmd.Context(), models.BookPayload{
				Title:  args[1],
				Author: author,
				ISBN:   isbn,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Added %q (id %d)\n", book.Title, book.ID)
			return nil
		},
	}
	add.Flags().StringVarP(&author, "author", "a", "", "book author")
	add.Flags().StringVar(&isbn, "isbn", "", "book ISBN")

	remove := &cobra.Command{
		Use:   "remove <shelf-id> <book-id>",
		Short: "Remove a book from a shelf",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.requireSession(cmd.Context()); err != nil {
				return err
			}
			shelfID, err := parseID(args[0], "shelf")
			if err != nil {
				return err
			}
			bookID, err := parseID(args[1], "book")
			if err != nil {
				return err
			}
			detail := resources.NewShelfDetail(shelfID, current.gw, current.manager, current.confirm, current.log)
			if err := detail.Load(cmd.Context()); err != nil {
				return err
			}
			if err := detail.RemoveBook(cmd.Context(), bookID); err != nil {
				if errors.Is(err, collection.ErrConfirmationDeclined) {
					fmt.Println("Aborted.")
					return nil
				}
				return err
			}
			fmt.Println("Book removed")
			return nil
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}
