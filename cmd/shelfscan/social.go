package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shelfscan/shelfscan/internal/collection"
	"github.com/shelfscan/shelfscan/internal/models"
	"github.com/shelfscan/shelfscan/internal/resources"
)

func friendsController() *resources.Friends {
	return resources.NewFriends(current.gw, current.manager, current.confirm, current.log)
}

func newFriendsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "friends",
		Short: "Manage friends and friend requests",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List friends and pending requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.requireSession(cmd.Context()); err != nil {
				return err
			}
			friends := friendsController()
			if err := friends.Load(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Friends:")
			if confirmed := friends.Friends(); len(confirmed) == 0 {
				fmt.Println("  none yet")
			} else {
				for _, u := range confirmed {
					fmt.Printf("  %4d  %s\n", u.ID, u.Username)
				}
			}
			if incoming := friends.Incoming(); len(incoming) > 0 {
				fmt.Println("Incoming requests:")
				for _, r := range incoming {
					fmt.Printf("  %4d  %s\n", r.FromUser.ID, r.FromUser.Username)
				}
			}
			if outgoing := friends.Outgoing(); len(outgoing) > 0 {
				fmt.Println("Outgoing requests:")
				for _, r := range outgoing {
					fmt.Printf("  %4d  %s\n", r.ToUser.ID, r.ToUser.Username)
				}
			}
			return nil
		},
	}

	friendAction := func(use, short, done string, run func(*resources.Friends, *cobra.Command, int) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <user-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := current.requireSession(cmd.Context()); err != nil {
					return err
				}
				userID, err := parseID(args[0], "user")
				if err != nil {
					return err
				}
				if err := run(friendsController(), cmd, userID); err != nil {
					if errors.Is(err, collection.ErrConfirmationDeclined) {
						fmt.Println("Aborted.")
						return nil
					}
					return err
				}
				fmt.Println(done)
				return nil
			},
		}
	}

	request := friendAction("request", "Send a friend request", "Request sent",
		func(f *resources.Friends, cmd *cobra.Command, id int) error { return f.Request(cmd.Context(), id) })
	accept := friendAction("accept", "Accept an incoming request", "Request accepted",
		func(f *resources.Friends, cmd *cobra.Command, id int) error { return f.Accept(cmd.Context(), id) })
	decline := friendAction("decline", "Decline or cancel a request", "Request removed",
		func(f *resources.Friends, cmd *cobra.Command, id int) error { return f.Decline(cmd.Context(), id) })
	remove := friendAction("remove", "Remove a friend", "Friend removed",
		func(f *resources.Friends, cmd *cobra.Command, id int) error { return f.Remove(cmd.Context(), id) })

	shelves := &cobra.Command{
		Use:   "shelves <user-id>",
		Short: "Browse a friend's bookshelves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.requireSession(cmd.Context()); err != nil {
				return err
			}
			userID, err := parseID(args[0], "user")
			if err != nil {
				return err
			}
			list, err := friendsController().ShelvesOf(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No shelves available")
				return nil
			}
			for _, s := range list {
				fmt.Printf("%4d  %s (%d book(s))\n", s.ID, s.Name, s.BookCount)
			}
			return nil
		},
	}

	cmd.AddCommand(list, request, accept, decline, remove, shelves)
	return cmd
}

func communitiesController() *resources.Communities {
	return resources.NewCommunities(current.gw, current.manager, current.confirm, current.log)
}

func newCommunitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "communities",
		Short: "Manage reading communities",
	}

	var search string
	list := &cobra.Command{
		Use:   "list",
		Short: "List communities, optionally filtered",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.requireSession(cmd.Context()); err != nil {
				return err
			}
			communities := communitiesController()
			if err := communities.Load(cmd.Context(), search); err != nil {
				return err
			}
			me := current.manager.CurrentUser()
			for _, c := range communities.Items() {
				marker := " "
				if communities.IsMember(c.ID) {
					marker = "*"
				}
				owner := ""
				if me != nil && c.OwnerID == me.ID {
					owner = " (owner)"
				}
				fmt.Printf("%s %4d  %s%s\n", marker, c.ID, c.Name, owner)
				if c.Description != "" {
					fmt.Printf("        %s\n", c.Description)
				}
			}
			return nil
		},
	}
	list.Flags().StringVarP(&search, "search", "s", "", "search query")

	mine := &cobra.Command{
		Use:   "mine",
		Short: "List communities you belong to",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.requireSession(cmd.Context()); err != nil {
				return err
			}
			communities := communitiesController()
			if err := communities.Load(cmd.Context(), ""); err != nil {
				return err
			}
			for _, c := range communities.Mine() {
				fmt.Printf("%4d  %s\n", c.ID, c.Name)
			}
			return nil
		},
	}

	var createDesc string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a community",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.requireSession(cmd.Context()); err != nil {
				return err
			}
			community, err := communitiesController().Create(cmd.Context(), models.CommunityPayload{
				Name:        args[0],
				Description: createDesc,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created community %q (id %d)\n", community.Name, community.ID)
			return nil
		},
	}
	create.Flags().StringVarP(&createDesc, "description", "d", "", "community description")

	var updateDesc string
	update := &cobra.Command{
		Use:   "update <id> <name>",
		Short: "Edit a community you own",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := current.requireSession(cmd.Context()); err != nil {
				return err
			}
			id, err := parseID(args[0], "community")
			if err != nil {
				return err
			}
			community, err := communitiesController().Update(cmd.Context(), id, models.CommunityPayload{
				Name:        args[1],
				Description: updateDesc,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Updated community %q\n", community.Name)
			return nil
		},
	}
	update.Flags().StringVarP(&updateDesc, "description", "d", "", "community description")

	communityAction := func(use, short, done string, run func(*resources.Communities, *cobra.Command, int) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := current.requireSession(cmd.Context()); err != nil {
					return err
				}
				id, err := parseID(args[0], "community")
				if err != nil {
					return err
				}
				communities := communitiesController()
				if err := communities.Load(cmd.Context(), ""); err != nil {
					return err
				}
				if err := run(communities, cmd, id); err != nil {
					if errors.Is(err, collection.ErrConfirmationDeclined) {
						fmt.Println("Aborted.")
						return nil
					}
					return err
				}
				fmt.Println(done)
				return nil
			},
		}
	}

	del := communityAction("delete", "Delete a community you own", "Community deleted",
		func(c *resources.Communities, cmd *cobra.Command, id int) error { return c.Delete(cmd.Context(), id) })
	join := communityAction("join", "Join a community", "Joined",
		func(c *resources.Communities, cmd *cobra.Command, id int) error { return c.Join(cmd.Context(), id) })
	leave := communityAction("leave", "Leave a community", "Left",
		func(c *resources.Communities, cmd *cobra.Command, id int) error { return c.Leave(cmd.Context(), id) })

	cmd.AddCommand(list, mine, create, update, del, join, leave)
	return cmd
}
