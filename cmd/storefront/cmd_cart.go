package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"storefront/internal/model"
)

// productFlags are the optional product details of an add.
type productFlags struct {
	qty   int
	name  string
	image string
	price float64
}

func (f *productFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.qty, "qty", 1, "quantity to add")
	cmd.Flags().StringVar(&f.name, "name", "", "product name (looked up when omitted)")
	cmd.Flags().StringVar(&f.image, "image", "", "product image URL")
	cmd.Flags().Float64Var(&f.price, "price", 0, "unit price")
}

// summary builds the product for id, looking it up when no name was given.
// A failed lookup is not fatal; the server fills the line in.
func (c *cli) summary(cmd *cobra.Command, id string, f *productFlags) model.ProductSummary {
	p := model.ProductSummary{ID: id, Name: f.name, Image: f.image, Price: f.price}
	if p.Name != "" {
		return p
	}
	found, err := c.app.API.GetProduct(cmd.Context(), id)
	if err != nil || found == nil {
		return p
	}
	p.Name = found.Name
	if p.Image == "" {
		p.Image = found.Image
	}
	if p.Price == 0 {
		p.Price = found.Price
	}
	return p
}

func parseQuantity(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("quantity must be a number: %q", s)
	}
	return n, nil
}

func newCartCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Work on the server cart of this device",
	}

	var refresh bool
	get := &cobra.Command{
		Use:   "get",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fetch := c.app.Cart.Get
			if refresh {
				fetch = c.app.Cart.Refresh
			}
			cart, err := fetch(cmd.Context())
			if err != nil {
				return err
			}
			return c.emit(cart, func() { c.out.cart("Cart", cart, c.symbol()) })
		},
	}
	get.Flags().BoolVar(&refresh, "refresh", false, "ignore the cached cart")

	var pf productFlags
	add := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			product := c.summary(cmd, args[0], &pf)
			cart, err := c.app.Cart.Add(cmd.Context(), product, pf.qty)
			if err != nil {
				return err
			}
			return c.emit(cart, func() {
				c.out.success("added %d × %s", pf.qty, args[0])
				c.out.cart("Cart", cart, c.symbol())
			})
		},
	}
	pf.register(add)

	update := &cobra.Command{
		Use:   "update <product-id> <quantity>",
		Short: "Set the quantity of a line; 0 removes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parseQuantity(args[1])
			if err != nil {
				return err
			}
			cart, err := c.app.Cart.UpdateQuantity(cmd.Context(), args[0], qty)
			if err != nil {
				return err
			}
			return c.emit(cart, func() { c.out.cart("Cart", cart, c.symbol()) })
		},
	}

	remove := &cobra.Command{
		Use:     "remove <product-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a line from the cart",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cart, err := c.app.Cart.Remove(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.emit(cart, func() {
				c.out.success("removed %s", args[0])
				c.out.cart("Cart", cart, c.symbol())
			})
		},
	}

	cmd.AddCommand(get, add, update, remove)
	return cmd
}

func newLocalCartCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local-cart",
		Short: "Work on the cart kept only on this device",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the local cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cart := c.app.LocalCart.Get()
			return c.emit(cart, func() { c.out.cart("Local cart", cart, c.symbol()) })
		},
	}

	var pf productFlags
	add := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the local cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cart, err := c.app.LocalCart.Add(c.summary(cmd, args[0], &pf), pf.qty)
			if err != nil {
				return err
			}
			return c.emit(cart, func() { c.out.cart("Local cart", cart, c.symbol()) })
		},
	}
	pf.register(add)

	update := &cobra.Command{
		Use:   "update <product-id> <quantity>",
		Short: "Set the quantity of a local line; 0 removes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := parseQuantity(args[1])
			if err != nil {
				return err
			}
			cart, err := c.app.LocalCart.UpdateQuantity(args[0], qty)
			if err != nil {
				return err
			}
			return c.emit(cart, func() { c.out.cart("Local cart", cart, c.symbol()) })
		},
	}

	remove := &cobra.Command{
		Use:     "remove <product-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a line from the local cart",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cart, err := c.app.LocalCart.Remove(args[0])
			if err != nil {
				return err
			}
			return c.emit(cart, func() { c.out.cart("Local cart", cart, c.symbol()) })
		},
	}

	var discount, shipping float64
	adjust := &cobra.Command{
		Use:   "adjust",
		Short: "Set the local cart discount and shipping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if discount < 0 || shipping < 0 {
				return model.NewValidationError("adjustments", "must not be negative")
			}
			cart := c.app.LocalCart.SetAdjustments(discount, shipping)
			return c.emit(cart, func() { c.out.cart("Local cart", cart, c.symbol()) })
		},
	}
	adjust.Flags().Float64Var(&discount, "discount", 0, "discount amount")
	adjust.Flags().Float64Var(&shipping, "shipping", 0, "shipping amount")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the local cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.LocalCart.Clear()
			c.out.success("local cart cleared")
			return nil
		},
	}

	cmd.AddCommand(get, add, update, remove, adjust, clearCmd)
	return cmd
}
