package postgres

import (
	"database/sql"
	"fmt"
	"math"
	"strings"

	_ "github.com/lib/pq"

	"github.com/MrLituation/BlockBox/internal/pkg/config"
)

const (
	createTableStmt = `CREATE TABLE IF NOT EXISTS transactions(transaction_id text, phase text, detail text, timestamp text, version text);`
	limit           = 100
)

type Client struct {
	sqlDB *sql.DB
}

func NewPostgresClient(databaseURL string) (Client, error) {
	postgresClient := Client{}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return postgresClient, err
	}
	postgresClient.sqlDB = db

	_, err = db.Exec(createTableStmt)
	if err != nil {
		return postgresClient, err
	}
	return postgresClient, nil
}

func (c *Client) WriteTransactionEvent(e config.TransactionEvent) error {
	stmt := "INSERT INTO transactions(transaction_id, phase, detail, timestamp, version) VALUES($1, $2, $3, $4, $5)"
	_, err := c.sqlDB.Exec(stmt, e.TransactionID, e.Phase, e.Detail, e.Timestamp, e.Version)
	if err != nil {
		return err
	}

	return nil
}

// GetTransactionHistory returns audit rows for one transaction id, or for
// all transactions when id is "all", newest first, paginated.
func (c *Client) GetTransactionHistory(transactionID string, page int) ([]config.TransactionEvent, int, error) {
	if page < 1 {
		page = 1
	}
	offset := limit * (page - 1)

	var rows *sql.Rows
	var countRow *sql.Row
	var err error
	numPages := 0
	if strings.ToLower(transactionID) == "all" {
		stmt := "SELECT * FROM transactions ORDER by timestamp DESC LIMIT $1 OFFSET $2"
		rows, err = c.sqlDB.Query(stmt, limit, offset)

		countRow = c.sqlDB.QueryRow("SELECT COUNT(*) FROM transactions")
	} else {
		stmt := `SELECT * FROM transactions WHERE transaction_id = $1 ORDER by timestamp DESC LIMIT $2 OFFSET $3`
		rows, err = c.sqlDB.Query(stmt, transactionID, limit, offset)

		countRow = c.sqlDB.QueryRow("SELECT COUNT(*) FROM transactions WHERE transaction_id = $1", transactionID)
	}

	if err != nil {
		return nil, numPages, err
	}

	if countRow.Err() != nil {
		return nil, numPages, countRow.Err()
	}

	defer rows.Close()

	var count int
	err = countRow.Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	numPages = int(math.Ceil(float64(count) / float64(limit)))

	var events []config.TransactionEvent
	for rows.Next() {
		var e config.TransactionEvent
		if err := rows.Scan(&e.TransactionID, &e.Phase, &e.Detail, &e.Timestamp, &e.Version); err != nil {
			return nil, numPages, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, numPages, fmt.Errorf("iterating transaction rows: %w", err)
	}
	return events, numPages, nil
}

// GetAllRows returns the full audit table for backup.
func (c *Client) GetAllRows() ([]config.TransactionEvent, error) {
	rows, err := c.sqlDB.Query("SELECT * FROM transactions ORDER by timestamp ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []config.TransactionEvent
	for rows.Next() {
		var e config.TransactionEvent
		if err := rows.Scan(&e.TransactionID, &e.Phase, &e.Detail, &e.Timestamp, &e.Version); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
