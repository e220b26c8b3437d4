package ledger

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"strings"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

// WriteStatementCSV streams the statement as CSV, flushing in chunks so large
// exports never buffer fully in memory.
func WriteStatementCSV(w io.Writer, filter StatementFilter, statement Statement) error {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true

	header := fmt.Sprintf("# Main account statement %s - %s\r\n",
		filter.From.Format("2006-01-02"), filter.To.Format("2006-01-02"))
	if _, err := buf.WriteString(header); err != nil {
		return err
	}

	if err := writer.Write([]string{"id", "created_at", "direction", "source_type", "source_id", "amount", "balance_after", "description"}); err != nil {
		return err
	}
	pending := 0
	for _, entry := range statement.Transactions {
		row := []string{
			fmt.Sprintf("%d", entry.ID),
			entry.CreatedAt.Format("2006-01-02 15:04:05"),
			string(entry.Direction),
			string(entry.SourceType),
			fmt.Sprintf("%d", entry.SourceID),
			entry.Amount.StringFixed(2),
			entry.BalanceAfter.StringFixed(2),
			entry.Description,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
		pending++
		if pending >= csvFlushEvery {
			writer.Flush()
			if err := writer.Error(); err != nil {
				return err
			}
			pending = 0
		}
	}
	if err := writer.Write([]string{"", "", "", "", "", "total", statement.TotalBalance.StringFixed(2), ""}); err != nil {
		return err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return buf.Flush()
}

var statementTemplate = template.Must(template.New("statement").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><style>
body { font-family: sans-serif; font-size: 12px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #444; padding: 4px 6px; text-align: left; }
td.num { text-align: right; }
</style></head>
<body>
<h2>Main Account Statement</h2>
<p>{{ .From }} &mdash; {{ .To }}</p>
<table>
<tr><th>Date</th><th>Direction</th><th>Source</th><th>Amount</th><th>Balance</th><th>Description</th></tr>
{{ range .Rows }}<tr><td>{{ .Date }}</td><td>{{ .Direction }}</td><td>{{ .Source }}</td><td class="num">{{ .Amount }}</td><td class="num">{{ .Balance }}</td><td>{{ .Description }}</td></tr>
{{ end }}
</table>
<p><strong>Total balance: {{ .Total }}</strong></p>
</body>
</html>`))

type statementRow struct {
	Date        string
	Direction   string
	Source      string
	Amount      string
	Balance     string
	Description string
}

// BuildStatementHTML renders the statement as a printable document for the
// PDF converter.
func BuildStatementHTML(filter StatementFilter, statement Statement) (string, error) {
	rows := make([]statementRow, 0, len(statement.Transactions))
	for _, entry := range statement.Transactions {
		rows = append(rows, statementRow{
			Date:        entry.CreatedAt.Format("2006-01-02 15:04"),
			Direction:   string(entry.Direction),
			Source:      string(entry.SourceType),
			Amount:      entry.Amount.StringFixed(2),
			Balance:     entry.BalanceAfter.StringFixed(2),
			Description: entry.Description,
		})
	}
	var sb strings.Builder
	err := statementTemplate.Execute(&sb, map[string]any{
		"From":  filter.From.Format("2006-01-02"),
		"To":    filter.To.Format("2006-01-02"),
		"Rows":  rows,
		"Total": statement.TotalBalance.StringFixed(2),
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
