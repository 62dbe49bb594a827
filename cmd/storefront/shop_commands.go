package main

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
)

func catalogCommand(get appFunc) *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "browse venues, studios, dishes and decorations",
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				ArgsUsage: "<kind>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "page", Value: 1},
					&cli.IntFlag{Name: "limit", Value: 10},
					&cli.StringFlag{Name: "sort", Usage: "field to sort by, e.g. price"},
					&cli.StringFlag{Name: "order", Usage: "asc or desc"},
					&cli.StringFlag{Name: "search"},
				},
				Action: func(c *cli.Context) error {
					kind, err := domain.ParseItemType(c.Args().First())
					if err != nil {
						return fail(err)
					}
					page, err := get().catalog.List(c.Context, kind, catalog.Query{
						Page:   c.Int("page"),
						Limit:  c.Int("limit"),
						Sort:   c.String("sort"),
						Order:  c.String("order"),
						Search: c.String("search"),
					})
					if err != nil {
						return fail(err)
					}
					return printJSON(c.App.Writer, page)
				},
			},
			{
				Name:      "get",
				ArgsUsage: "<kind> <id>",
				Action: func(c *cli.Context) error {
					kind, err := domain.ParseItemType(c.Args().Get(0))
					if err != nil {
						return fail(err)
					}
					e, err := get().catalog.Get(c.Context, kind, c.Args().Get(1))
					if err != nil {
						return fail(err)
					}
					return printJSON(c.App.Writer, e)
				},
			},
			{
				Name:      "search",
				ArgsUsage: "<term>",
				Action: func(c *cli.Context) error {
					found, err := get().catalog.SearchAll(c.Context, c.Args().First())
					if err != nil {
						return fail(err)
					}
					return printJSON(c.App.Writer, found)
				},
			},
		},
	}
}

func cartCommand(get appFunc) *cli.Command {
	// every cart subcommand starts from the server copy
	load := func(c *cli.Context) error {
		return fail(get().loadCart(c.Context))
	}
	show := func(c *cli.Context) error {
		a := get()
		if err := printJSON(c.App.Writer, a.cart.Lines()); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%d item(s), total %.2f\n", a.cart.Count(), a.cart.Total())
		return nil
	}

	return &cli.Command{
		Name:   "cart",
		Usage:  "show and change the cart",
		Before: load,
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Action: show,
			},
			{
				Name:      "add",
				ArgsUsage: "<kind> <id>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "qty", Value: 1},
					&cli.StringFlag{Name: "from", Usage: "booking start, YYYY-MM-DD"},
					&cli.StringFlag{Name: "till", Usage: "booking end, YYYY-MM-DD"},
				},
				Action: func(c *cli.Context) error {
					a := get()
					kind, err := domain.ParseItemType(c.Args().Get(0))
					if err != nil {
						return fail(err)
					}
					var booking *domain.BookingRange
					if c.IsSet("from") || c.IsSet("till") {
						if booking, err = domain.NewBookingRange(c.String("from"), c.String("till")); err != nil {
							return fail(err)
						}
						if err := booking.Validate(); err != nil {
							return fail(err)
						}
					}
					entity, err := a.catalog.Get(c.Context, kind, c.Args().Get(1))
					if err != nil {
						return fail(err)
					}
					if err := a.cart.AddToCart(c.Context, entity.Candidate(c.Int("qty"), booking)); err != nil {
						return fail(err)
					}
					return show(c)
				},
			},
			{
				Name:      "remove",
				ArgsUsage: "<line-id>",
				Action: func(c *cli.Context) error {
					if err := get().cart.RemoveFromCart(c.Context, domain.LineID(c.Args().First())); err != nil {
						return fail(err)
					}
					return show(c)
				},
			},
			{
				Name:      "qty",
				ArgsUsage: "<line-id> <quantity>",
				Action: func(c *cli.Context) error {
					n, err := strconv.Atoi(c.Args().Get(1))
					if err != nil {
						return fail(&domain.ValidationError{Field: "quantity", Reason: "must be a number"})
					}
					if err := get().cart.UpdateQuantity(c.Context, domain.LineID(c.Args().Get(0)), n); err != nil {
						return fail(err)
					}
					return show(c)
				},
			},
			{
				Name:      "booking",
				ArgsUsage: "<line-id> <from> <till>",
				Action: func(c *cli.Context) error {
					r, err := domain.NewBookingRange(c.Args().Get(1), c.Args().Get(2))
					if err != nil {
						return fail(err)
					}
					if err := get().cart.SetBookingRange(c.Context, domain.LineID(c.Args().Get(0)), *r); err != nil {
						return fail(err)
					}
					return show(c)
				},
			},
			{
				Name: "clear",
				Action: func(c *cli.Context) error {
					if err := get().cart.ClearCart(c.Context); err != nil {
						return fail(err)
					}
					return show(c)
				},
			},
		},
	}
}

func checkoutCommand(get appFunc) *cli.Command {
	return &cli.Command{
		Name:  "checkout",
		Usage: "turn the cart into a draft order",
		Action: func(c *cli.Context) error {
			a := get()
			if err := a.loadCart(c.Context); err != nil {
				return fail(err)
			}
			order, err := a.checkout.Checkout(c.Context)
			if err != nil {
				return fail(err)
			}
			return printJSON(c.App.Writer, order)
		},
	}
}

func finalizeCommand(get appFunc) *cli.Command {
	return &cli.Command{
		Name:      "finalize",
		Usage:     "empty the cart once the order has been paid",
		ArgsUsage: "<order-id>",
		Action: func(c *cli.Context) error {
			a := get()
			if err := a.loadCart(c.Context); err != nil {
				return fail(err)
			}
			order, err := a.checkout.Finalize(c.Context, c.Args().First())
			if err != nil {
				return fail(err)
			}
			return printJSON(c.App.Writer, order)
		},
	}
}

func ordersCommand(get appFunc) *cli.Command {
	return &cli.Command{
		Name:  "orders",
		Usage: "list and inspect orders",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Flags: []cli.Flag{&cli.IntFlag{Name: "page"}},
				Action: func(c *cli.Context) error {
					page, err := get().orders.ListMine(c.Context, c.Int("page"))
					if err != nil {
						return fail(err)
					}
					return printJSON(c.App.Writer, page)
				},
			},
			{
				Name:      "get",
				ArgsUsage: "<order-id>",
				Action: func(c *cli.Context) error {
					order, err := get().orders.Get(c.Context, c.Args().First())
					if err != nil {
						return fail(err)
					}
					return printJSON(c.App.Writer, order)
				},
			},
			{
				Name:      "status",
				Usage:     "move an order to the next status (admin)",
				ArgsUsage: "<order-id> <status>",
				Action: func(c *cli.Context) error {
					a := get()
					current, err := a.orders.Get(c.Context, c.Args().Get(0))
					if err != nil {
						return fail(err)
					}
					order, err := a.orders.UpdateStatus(c.Context, c.Args().Get(0), current.Status, domain.OrderStatus(c.Args().Get(1)))
					if err != nil {
						return fail(err)
					}
					return printJSON(c.App.Writer, order)
				},
			},
		},
	}
}
