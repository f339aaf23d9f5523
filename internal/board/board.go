// Package board turns store contents into what a bar station displays:
// sorted rows with derived status and elapsed time, and their text rendering.
package board

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lorenzobigazzi0/app/internal/order"
)

// NoNote is shown where an order or item has no note.
const NoNote = "N/A"

// Row is one order as displayed.
type Row struct {
	OrderID        string       `json:"order_id"`
	Table          int          `json:"table"`
	Waiter         string       `json:"waiter"`
	Status         order.Status `json:"status"`
	Label          string       `json:"label"`
	Elapsed        string       `json:"elapsed"`
	ElapsedSeconds int64        `json:"elapsed_seconds"`
	Covers         int          `json:"covers"`
	Apericena      int          `json:"apericena"`
	Note           string       `json:"note"`
	Done           int          `json:"done"`
	Total          int          `json:"total"`
	TotalQty       int          `json:"total_qty"`
	Items          []ItemRow    `json:"items"`
}

// ItemRow is one item line of a Row.
type ItemRow struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Qty  int    `json:"qty"`
	Note string `json:"note"`
	Done bool   `json:"done"`
}

// Build sorts orders by priority at instant now and derives every row.
// Nothing is cached: calling Build again with a later now moves timers.
func Build(orders []order.Order, now time.Time) []Row {
	upper := cases.Upper(language.Italian)
	sorted := order.Sort(orders, now)
	rows := make([]Row, len(sorted))
	for i, o := range sorted {
		rows[i] = buildRow(upper, o, now)
	}
	return rows
}

func buildRow(upper cases.Caser, o order.Order, now time.Time) Row {
	st := order.Derive(o)
	elapsed := order.Elapsed(o, now)
	r := Row{
		OrderID:        o.ID,
		Table:          o.Table,
		Waiter:         o.Waiter,
		Status:         st,
		Label:          st.Label(),
		Elapsed:        order.FormatMMSS(elapsed),
		ElapsedSeconds: int64(elapsed / time.Second),
		Covers:         o.Covers,
		Apericena:      o.Apericena,
		Note:           note(upper, o.Note),
		Done:           order.DoneCount(o),
		Total:          len(o.Items),
		TotalQty:       o.TotalQty(),
		Items:          make([]ItemRow, len(o.Items)),
	}
	for i, it := range o.Items {
		r.Items[i] = ItemRow{
			ID:   it.ID,
			Name: upper.String(it.Name),
			Qty:  it.Qty,
			Note: note(upper, it.Note),
			Done: it.Done,
		}
	}
	return r
}

func note(upper cases.Caser, s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return NoNote
	}
	return upper.String(strings.TrimSpace(*s))
}

// RenderText writes rows in the fixed station layout.
func RenderText(w io.Writer, rows []Row) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "nessuna comanda")
		return err
	}
	for i, r := range rows {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := renderRow(w, r); err != nil {
			return err
		}
	}
	return nil
}

func renderRow(w io.Writer, r Row) error {
	var b strings.Builder
	fmt.Fprintf(&b, "#%s  TAVOLO %d  CAM %s  %s  %s  %d/%d\n",
		r.OrderID, r.Table, r.Waiter, r.Label, r.Elapsed, r.Done, r.Total)
	for _, it := range r.Items {
		check := "[ ]"
		if it.Done {
			check = "[x]"
		}
		fmt.Fprintf(&b, "  %s %s%s - %s\n", check, qtyBadge(it.Qty), it.Name, it.Note)
	}
	fmt.Fprintf(&b, "  COPERTI %d | APERICENA %d | PEZZI %d | NOTE %s\n",
		r.Covers, r.Apericena, r.TotalQty, r.Note)
	_, err := io.WriteString(w, b.String())
	return err
}

func qtyBadge(qty int) string {
	if qty > 1 {
		return fmt.Sprintf("x%d ", qty)
	}
	return ""
}

// RenderTicket writes the printable slip for one order.
func RenderTicket(w io.Writer, station string, o order.Order) error {
	upper := cases.Upper(language.Italian)
	var b strings.Builder
	fmt.Fprintf(&b, "POSTAZIONE: %s\n", station)
	fmt.Fprintf(&b, "TAVOLO: %d\n", o.Table)
	fmt.Fprintf(&b, "CAMERIERE: %s\n", o.Waiter)
	fmt.Fprintf(&b, "COMANDA: #%s\n\n", o.ID)
	for _, it := range o.Items {
		fmt.Fprintf(&b, "%s%s (%s)\n", qtyBadge(it.Qty), upper.String(it.Name), note(upper, it.Note))
	}
	fmt.Fprintf(&b, "\nNOTE: %s\n", note(upper, o.Note))
	_, err := io.WriteString(w, b.String())
	return err
}
