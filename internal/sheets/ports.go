package sheets

import (
	"context"
	"strconv"

	"finbot/internal/core"
)

// Ports for the spreadsheet mirror.
type (
	// TransactionAppender adds a transaction row unless one with the same id
	// is already present.
	TransactionAppender interface {
		AppendTransaction(ctx context.Context, tx core.Transaction) error
	}

	// TransactionRemover clears the row holding id. It reports whether a row
	// was found.
	TransactionRemover interface {
		RemoveTransaction(ctx context.Context, id int64) (bool, error)
	}

	Mirror interface {
		TransactionAppender
		TransactionRemover
	}
)

// Header is the first row of the mirror sheet.
var Header = []string{"id", "owner_id", "data", "tipo", "valor", "categoria"}

// Row renders tx in Header column order.
func Row(tx core.Transaction) []string {
	return []string{
		strconv.FormatInt(tx.ID, 10),
		strconv.FormatInt(tx.OwnerID, 10),
		tx.Date.Format(core.DateLayout),
		tx.Kind.Label(),
		tx.Amount.String(),
		tx.Category,
	}
}
