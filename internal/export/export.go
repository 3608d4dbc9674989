// Package export writes option quotes and margin rows as CSV or console tables.
package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"

	"upstox-options/internal/models"
)

// WriteQuotesCSV writes quotes with the instrument_name, strike_price, side,
// bid/ask header.
func WriteQuotesCSV(w io.Writer, quotes []models.OptionQuote) error {
	if len(quotes) == 0 {
		return writeHeaderOnly(w, models.QuoteColumns)
	}
	if err := gocsv.Marshal(quotes, w); err != nil {
		return fmt.Errorf("writing quotes csv: %w", err)
	}
	return nil
}

// WriteMarginCSV writes margin rows with the quote columns followed by
// margin_required and premium_earned.
func WriteMarginCSV(w io.Writer, rows []models.MarginRow) error {
	if len(rows) == 0 {
		return writeHeaderOnly(w, models.MarginColumns)
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("writing margin csv: %w", err)
	}
	return nil
}

// ReadQuotesCSV reads quotes previously written by WriteQuotesCSV.
func ReadQuotesCSV(r io.Reader) ([]models.OptionQuote, error) {
	var quotes []models.OptionQuote
	if err := gocsv.Unmarshal(r, &quotes); err != nil {
		return nil, fmt.Errorf("reading quotes csv: %w", err)
	}
	for i, q := range quotes {
		if !q.Side.Valid() {
			return nil, fmt.Errorf("reading quotes csv: row %d: invalid side %q", i+1, q.Side)
		}
	}
	return quotes, nil
}

func writeHeaderOnly(w io.Writer, columns []string) error {
	csvw := gocsv.DefaultCSVWriter(w)
	if err := csvw.Write(columns); err != nil {
		return err
	}
	csvw.Flush()
	return csvw.Error()
}

// WriteQuotesTable renders quotes as a console table.
func WriteQuotesTable(w io.Writer, quotes []models.OptionQuote) {
	table := newTable(w, models.QuoteColumns)
	for _, q := range quotes {
		table.Append(quoteCells(q))
	}
	table.Render()
}

// WriteMarginTable renders margin rows as a console table. Rows whose margin
// lookup failed show "-" instead of 0.
func WriteMarginTable(w io.Writer, rows []models.MarginRow) {
	table := newTable(w, models.MarginColumns)
	for _, r := range rows {
		margin := "-"
		if r.MarginAvailable {
			margin = formatFloat(r.MarginRequired)
		}
		table.Append(append(quoteCells(r.OptionQuote), margin, formatFloat(r.PremiumEarned)))
	}
	table.Render()
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)
	return table
}

func quoteCells(q models.OptionQuote) []string {
	return []string{q.InstrumentName, models.FormatStrike(q.StrikePrice), string(q.Side), formatFloat(q.Price)}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
