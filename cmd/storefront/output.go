package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"storefront/internal/history"
	"storefront/internal/model"
	"storefront/internal/session"
	"storefront/internal/syncqueue"
)

// ANSI color codes
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
	ansiBold   = "\033[1m"
)

// printer writes command output, colored when w is a terminal and NO_COLOR
// is unset.
type printer struct {
	w     io.Writer
	color bool
	quiet bool
}

func (c *cli) printer(w io.Writer) *printer {
	color := os.Getenv("NO_COLOR") == ""
	if f, ok := w.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		color = false
	}
	return &printer{w: w, color: color, quiet: c.quiet}
}

func (p *printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + ansiReset
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) success(format string, args ...any) {
	if !p.quiet {
		fmt.Fprintln(p.w, p.paint(ansiGreen, "✓ "+fmt.Sprintf(format, args...)))
	}
}

func (p *printer) info(format string, args ...any) {
	if !p.quiet {
		fmt.Fprintln(p.w, p.paint(ansiGray, "→ "+fmt.Sprintf(format, args...)))
	}
}

func (p *printer) warn(format string, args ...any) {
	fmt.Fprintln(p.w, p.paint(ansiYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func (p *printer) fail(err error) {
	fmt.Fprintln(p.w, p.paint(ansiRed, "✗ "+errMessage(err)))
}

// errMessage is the text shown for err. Service errors get the
// shopper-facing message; anything else (flags, config) is shown as is.
func errMessage(err error) string {
	var apiErr *model.APIError
	if errors.Is(err, model.ErrNetwork) || errors.As(err, &apiErr) {
		return model.UserMessage(err)
	}
	return err.Error()
}

func (p *printer) cart(title string, c *model.Cart, symbol string) {
	if c == nil || len(c.Items) == 0 {
		p.info("%s is empty", title)
		return
	}
	if p.quiet {
		fmt.Fprintln(p.w, model.FormatPrice(symbol, c.Total))
		return
	}

	header := title
	if c.ID != "" {
		header += " " + p.paint(ansiGray, c.ID)
	}
	fmt.Fprintln(p.w, p.paint(ansiBold, header))
	for _, item := range c.Items {
		name := item.Name
		if name == "" {
			name = item.ProductID
		}
		fmt.Fprintf(p.w, "  %-28s %3d × %-10s %s\n",
			truncate(name, 28),
			item.Quantity,
			model.FormatPrice(symbol, item.UnitPrice),
			model.FormatPrice(symbol, item.LineTotal()),
		)
	}
	fmt.Fprintf(p.w, "  %-45s %s\n", "Subtotal", model.FormatPrice(symbol, c.Subtotal))
	if c.Discount != 0 {
		fmt.Fprintf(p.w, "  %-45s -%s\n", "Discount", model.FormatPrice(symbol, c.Discount))
	}
	if c.Shipping != 0 {
		fmt.Fprintf(p.w, "  %-45s %s\n", "Shipping", model.FormatPrice(symbol, c.Shipping))
	}
	fmt.Fprintf(p.w, "  %-45s %s\n", p.paint(ansiBold, "Total"), p.paint(ansiBold, model.FormatPrice(symbol, c.Total)))
}

func (p *printer) wishlist(w model.Wishlist) {
	if len(w) == 0 {
		p.info("wishlist is empty")
		return
	}
	for _, item := range w {
		if p.quiet {
			fmt.Fprintln(p.w, item.ProductID)
			continue
		}
		title := item.Title
		if title == "" {
			title = p.paint(ansiGray, "(pending lookup)")
		}
		fmt.Fprintf(p.w, "  %-12s %-32s %s\n", item.ProductID, truncate(title, 32), item.Price)
	}
}

func (p *printer) session(st session.Status) {
	if !st.LoggedIn {
		p.info("signed out")
		return
	}
	line := "signed in"
	if st.Subject != "" {
		line += " as " + p.paint(ansiCyan, st.Subject)
	}
	fmt.Fprintln(p.w, line)
	if st.ExpiresAt != nil {
		if st.Expired {
			p.warn("credential expired at %s", st.ExpiresAt.Local().Format("2006-01-02 15:04"))
		} else {
			p.info("expires %s", st.ExpiresAt.Local().Format("2006-01-02 15:04"))
		}
	}
}

func (p *printer) history(entries []history.Entry, symbol string) {
	if len(entries) == 0 {
		p.info("nothing viewed yet")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(p.w, "  %-12s %-32s %-10s %s\n",
			e.Product.ID,
			truncate(e.Product.Name, 32),
			model.FormatPrice(symbol, e.Product.Price),
			p.paint(ansiGray, e.ViewedAt.Local().Format("Jan 2 15:04")),
		)
	}
}

func (p *printer) deadLetters(letters []syncqueue.DeadLetter) {
	if len(letters) == 0 {
		p.success("no failed sync tasks")
		return
	}
	for _, dl := range letters {
		fmt.Fprintf(p.w, "  %s %-16s %-12s %d attempts  %s\n",
			p.paint(ansiGray, dl.FailedAt.Local().Format("Jan 2 15:04")),
			dl.Kind,
			dl.Subject,
			dl.Attempts,
			p.paint(ansiRed, dl.Error),
		)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
