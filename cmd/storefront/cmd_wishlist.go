package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storefront/internal/model"
)

func newWishlistCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wishlist",
		Short: "Work on the wishlist of this device",
		Long: `Wishlist changes are saved on this device first and pushed to the
server in the background. Reads prefer the server copy and fall back to the
local one when the server cannot be reached.`,
	}

	var local bool
	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List wishlist items",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var items model.Wishlist
			if local {
				items = c.app.Wishlist.Local()
			} else {
				items = c.app.Wishlist.Items(cmd.Context())
			}
			return c.emit(items, func() { c.out.wishlist(items) })
		},
	}
	list.Flags().BoolVar(&local, "local", false, "show the local copy without contacting the server")

	var item model.WishlistItem
	add := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the wishlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item.ProductID = args[0]
			items, err := c.app.Wishlist.Add(cmd.Context(), item)
			if err != nil {
				return err
			}
			return c.emit(items, func() {
				c.out.success("saved %s", args[0])
				c.out.wishlist(items)
			})
		},
	}
	add.Flags().StringVar(&item.Title, "title", "", "product title (looked up when omitted)")
	add.Flags().StringVar(&item.Price, "price", "", "display price, e.g. ₹500")
	add.Flags().StringVar(&item.Image, "image", "", "product image URL")

	remove := &cobra.Command{
		Use:     "remove <product-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a product from the wishlist",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items := c.app.Wishlist.Remove(cmd.Context(), args[0])
			return c.emit(items, func() { c.out.wishlist(items) })
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every wishlist item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.Wishlist.Clear(cmd.Context())
			c.out.success("wishlist cleared")
			return nil
		},
	}

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Push the local wishlist and read back the server copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items := c.app.Wishlist.SyncOnLogin(cmd.Context())
			return c.emit(items, func() { c.out.wishlist(items) })
		},
	}

	cmd.AddCommand(list, add, remove, clearCmd, sync)
	return cmd
}

func newLoginCmd(c *cli) *cobra.Command {
	var noSync bool
	cmd := &cobra.Command{
		Use:   "login <token>",
		Short: "Store a credential and merge the local wishlist into the account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.app.Session.Login(args[0])
			if err != nil {
				return err
			}
			var items model.Wishlist
			if !noSync {
				items = c.app.Wishlist.SyncOnLogin(cmd.Context())
			}
			return c.emit(map[string]any{"session": st, "wishlist": items}, func() {
				c.out.session(st)
				if !noSync {
					c.out.info("wishlist merged: %d items", len(items))
				}
			})
		},
	}
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "do not push the local wishlist")
	return cmd
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.Session.Logout()
			c.out.success("signed out")
			return nil
		},
	}
}

func newSessionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the stored credential status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := c.app.Session.Status()
			return c.emit(st, func() { c.out.session(st) })
		},
	}
}

func newDeviceCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Print the device identifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := c.app.Device.ID()
			return c.emit(map[string]string{"device_id": id}, func() {
				fmt.Fprintln(c.out.w, id)
			})
		},
	}
}

func newProductCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "product <product-id>",
		Short: "Look up a product and record the view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.app.API.GetProduct(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if p == nil {
				return model.NewNotFoundError("product")
			}
			c.app.History.Record(*p)
			return c.emit(p, func() {
				c.out.info("%s  %s  %s", p.ID, p.Name, model.FormatPrice(c.symbol(), p.Price))
			})
		},
	}
}

func newHistoryCmd(c *cli) *cobra.Command {
	var clearAll bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently viewed products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearAll {
				c.app.History.Clear()
				c.out.success("history cleared")
				return nil
			}
			entries := c.app.History.List()
			return c.emit(entries, func() { c.out.history(entries, c.symbol()) })
		},
	}
	cmd.Flags().BoolVar(&clearAll, "clear", false, "forget every entry")
	return cmd
}

func newDeadLettersCmd(c *cli) *cobra.Command {
	var clearAll bool
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "Show background sync tasks that gave up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearAll {
				n := c.app.Queue.ClearDeadLetters()
				c.out.success("cleared %d failed tasks", n)
				return nil
			}
			letters := c.app.Queue.DeadLetters()
			return c.emit(letters, func() { c.out.deadLetters(letters) })
		},
	}
	cmd.Flags().BoolVar(&clearAll, "clear", false, "drop the recorded failures")
	return cmd
}
