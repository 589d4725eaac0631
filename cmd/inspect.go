package cmd

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/iksnae/kbchat/internal"
	"github.com/spf13/cobra"
)

var (
	inspectSession    string
	inspectSchema     bool
	inspectSampleRows int
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <export.db>",
	Short: "Browse a SQLite transcript export",
	Long: `Browse conversations saved with the sqlite export format.

Without flags every stored session is listed. --session prints one
conversation with its sources; --schema shows the tables with sample rows.

Examples:
  kbchat inspect chats.db
  kbchat inspect chats.db --session 6f1c...
  kbchat inspect chats.db --schema --sample 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := args[0]
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("failed to open transcript export: %w", err)
		}

		db, err := internal.OpenDatabase(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = db.Close() }()

		out := cmd.OutOrStdout()
		switch {
		case inspectSchema:
			return inspectDatabase(out, db, dbPath)
		case inspectSession != "":
			return showTranscript(cmd, db, inspectSession)
		default:
			return listTranscripts(cmd, db)
		}
	},
}

func listTranscripts(cmd *cobra.Command, db *sql.DB) error {
	summaries, err := internal.ListTranscripts(cmd.Context(), db)
	if err != nil {
		return err
	}
	r := newRenderer(cmd.OutOrStdout())
	if len(summaries) == 0 {
		r.printf("No sessions stored.\n")
		return nil
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, r.style(headerStyle, "SESSION\tSCOPE\tTURNS\tMESSAGES\tEXPORTED"))
	for _, s := range summaries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			r.style(idStyle, s.ID), s.Scope, s.TurnCount, s.MessageCount, s.ExportedAt)
	}
	return w.Flush()
}

func showTranscript(cmd *cobra.Command, db *sql.DB, sessionID string) error {
	messages, err := internal.ReadTranscript(cmd.Context(), db, sessionID)
	if err != nil {
		return err
	}

	r := newRenderer(cmd.OutOrStdout())
	for _, m := range messages {
		switch {
		case m.IsBoundary():
			r.Boundary(m.Content)
		case m.Role == internal.RoleUser:
			r.printf("%s %s\n", r.style(promptStyle, "you>"), m.Content)
		case m.Error != "":
			r.Failure(m.Error)
		default:
			r.Markdown(m.Content)
			r.Sources(m.Sources)
		}
		r.printf("\n")
	}
	return nil
}

func inspectDatabase(out io.Writer, db *sql.DB, dbPath string) error {
	tables, err := getTables(db)
	if err != nil {
		return fmt.Errorf("failed to get tables: %w", err)
	}

	_, _ = fmt.Fprintf(out, "📋 Database: %s\n", dbPath)
	_, _ = fmt.Fprintf(out, "📊 Found %d table(s)\n\n", len(tables))

	for _, tableName := range tables {
		if err := inspectTable(out, db, tableName); err != nil {
			_, _ = fmt.Fprintf(out, "⚠️  Error inspecting table %s: %v\n", tableName, err)
			continue
		}
		_, _ = fmt.Fprintln(out)
	}
	return nil
}

func getTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func inspectTable(out io.Writer, db *sql.DB, tableName string) error {
	_, _ = fmt.Fprintf(out, "📦 Table: %s\n", tableName)

	var rowCount int
	if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %q", tableName)).Scan(&rowCount); err != nil {
		return fmt.Errorf("failed to get row count: %w", err)
	}
	_, _ = fmt.Fprintf(out, "📊 Rows: %d\n", rowCount)

	columns, err := getTableSchema(db, tableName)
	if err != nil {
		return fmt.Errorf("failed to get schema: %w", err)
	}

	_, _ = fmt.Fprintf(out, "📐 Schema:\n")
	for _, col := range columns {
		pk := ""
		if col.PrimaryKey {
			pk = " [PRIMARY KEY]"
		}
		notNull := ""
		if col.NotNull {
			notNull = " NOT NULL"
		}
		_, _ = fmt.Fprintf(out, "  • %s: %s%s%s\n", col.Name, col.Type, notNull, pk)
	}

	if rowCount > 0 && inspectSampleRows > 0 {
		if err := showSampleData(out, db, tableName, columns, inspectSampleRows); err != nil {
			_, _ = fmt.Fprintf(out, "⚠️  Error showing sample data: %v\n", err)
		}
	}
	return nil
}

// ColumnInfo describes one column of a table
type ColumnInfo struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
}

func getTableSchema(db *sql.DB, tableName string) ([]ColumnInfo, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", tableName))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		var cid, notNull, pk int
		var defaultValue sql.NullString
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultValue, &pk); err != nil {
			continue
		}
		col.NotNull = notNull == 1
		// composite keys report their position, not 1
		col.PrimaryKey = pk > 0
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func showSampleData(out io.Writer, db *sql.DB, tableName string, columns []ColumnInfo, limit int) error {
	if len(columns) == 0 {
		return nil
	}

	colNames := make([]string, len(columns))
	for i, col := range columns {
		colNames[i] = fmt.Sprintf("%q", col.Name)
	}

	query := fmt.Sprintf("SELECT %s FROM %q LIMIT %d", strings.Join(colNames, ", "), tableName, limit)
	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	_, _ = fmt.Fprintf(out, "📄 Sample Data (first %d rows):\n", limit)
	rowNum := 0
	for rows.Next() {
		rowNum++
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			_, _ = fmt.Fprintf(out, "  ⚠️  Row %d: error scanning: %v\n", rowNum, err)
			continue
		}

		_, _ = fmt.Fprintf(out, "  Row %d:\n", rowNum)
		for i, col := range columns {
			valStr := "<NULL>"
			if values[i] != nil {
				valStr = snippet(fmt.Sprintf("%v", values[i]), 80)
			}
			_, _ = fmt.Fprintf(out, "    %s: %s\n", col.Name, valStr)
		}
	}
	return rows.Err()
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&inspectSession, "session", "s", "", "Print the conversation with this session id")
	inspectCmd.Flags().BoolVar(&inspectSchema, "schema", false, "Show tables, columns and sample rows")
	inspectCmd.Flags().IntVar(&inspectSampleRows, "sample", 3, "Number of sample rows to show with --schema")
}
