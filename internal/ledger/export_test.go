package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleStatement() (StatementFilter, Statement) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	filter := StatementFilter{From: from, To: from.AddDate(0, 1, 0).Add(-time.Nanosecond), Limit: 500}
	statement := Statement{
		Transactions: []MainAccountTransaction{
			{ID: 2, Direction: Credit, SourceType: SourceCustomer, SourceID: 9, Amount: dec("60"), BalanceAfter: dec("60"), Description: "payment INV-1", CreatedAt: from.Add(30 * time.Hour)},
			{ID: 1, Direction: Debit, SourceType: SourceExpense, Amount: dec("15.25"), BalanceAfter: dec("-15.25"), Description: "stationery", CreatedAt: from.Add(2 * time.Hour)},
		},
		TotalBalance: dec("44.75"),
	}
	return filter, statement
}

func TestWriteStatementCSV(t *testing.T) {
	filter, statement := sampleStatement()
	var sb strings.Builder
	require.NoError(t, WriteStatementCSV(&sb, filter, statement))

	out := sb.String()
	require.Contains(t, out, "# Main account statement 2025-03-01 - 2025-03-31")
	require.Contains(t, out, "id,created_at,direction,source_type,source_id,amount,balance_after,description")
	require.Contains(t, out, "2,2025-03-02 06:00:00,credit,customer,9,60.00,60.00,payment INV-1")
	require.Contains(t, out, ",,,,,total,44.75,")
}

func TestBuildStatementHTML(t *testing.T) {
	filter, statement := sampleStatement()
	html, err := BuildStatementHTML(filter, statement)
	require.NoError(t, err)
	require.Contains(t, html, "Main Account Statement")
	require.Contains(t, html, "44.75")
	require.Contains(t, html, "stationery")
}
