// Copyright 2024 The pgfetch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pgfetch/pgfetch/internal/util/iterator"
	"github.com/pgfetch/pgfetch/pgfetch"
)

// The evalParams struct represents eval command parameters.
//
//nolint:lll // some tags are long
type evalParams struct {
	Query string   `arg:""             help:"SQL statement; use $1..$n or ? placeholders."`
	Args  []string `arg:"" optional:"" help:"Statement parameters."`

	Format string `default:"table" enum:"table,json" help:"Output format: 'table', 'json'."`

	Isolation  string `default:"default" enum:"default,read-uncommitted,read-committed,repeatable-read,serializable" help:"Submit the statement in a transaction with this isolation level."`
	ReadOnly   bool   `default:"false"   help:"Mark the transaction read-only."`
	Deferrable bool   `default:"false"   help:"Mark the transaction deferrable."`
}

// isolationLevels maps --isolation flag values to levels.
var isolationLevels = map[string]pgfetch.IsolationLevel{
	"default":          pgfetch.IsolationDefault,
	"read-uncommitted": pgfetch.IsolationReadUncommitted,
	"read-committed":   pgfetch.IsolationReadCommitted,
	"repeatable-read":  pgfetch.IsolationRepeatableRead,
	"serializable":     pgfetch.IsolationSerializable,
}

// eval executes one statement over a fresh session and prints its outcome
// to stdout in the requested format.
//
// When transaction flags are set, the statement travels as a buffered
// single-statement transaction and the handle resolves at commit.
func eval(ctx context.Context, config *pgfetch.Config, r prometheus.Registerer, l *zap.Logger) error {
	client, err := pgfetch.New(config)
	if err != nil {
		return err
	}

	r.MustRegister(client)

	defer func() {
		if err := client.Close(); err != nil {
			l.Warn("Failed to close client", zap.Error(err))
		}
	}()

	s := client.Session()
	defer s.Close()

	args := make([]any, len(cli.Eval.Args))
	for i, a := range cli.Eval.Args {
		args[i] = a
	}

	var opts *pgfetch.TxOptions

	level := isolationLevels[cli.Eval.Isolation]
	if level != pgfetch.IsolationDefault || cli.Eval.ReadOnly || cli.Eval.Deferrable {
		opts = &pgfetch.TxOptions{
			Isolation:  level,
			ReadOnly:   cli.Eval.ReadOnly,
			Deferrable: cli.Eval.Deferrable,
		}
	}

	if opts != nil {
		if err = s.Begin(opts); err != nil {
			return err
		}
	}

	p, err := s.Execute(ctx, cli.Eval.Query, args...)
	if err != nil {
		return err
	}

	if opts != nil {
		if err = s.Commit(ctx); err != nil {
			return err
		}
	}

	rows, err := p.Wait(ctx)
	if err != nil {
		return err
	}
	defer rows.Close()

	if err = printRows(os.Stdout, rows, cli.Eval.Format); err != nil {
		return err
	}

	l.Debug("Statement executed", zap.String("command", rows.Command()), zap.Int("rows", rows.RowCount()))

	return nil
}

// printRows writes the decoded outcome to w in the given format.
func printRows(w io.Writer, rows *pgfetch.Rows, format string) error {
	switch format {
	case "table":
		return printTable(w, rows)
	case "json":
		return printJSON(w, rows)
	default:
		panic("unhandled format " + format)
	}
}

// printTable writes column names and rows in aligned columns,
// or just the command tag for statements that return no columns.
func printTable(w io.Writer, rows *pgfetch.Rows) error {
	fields := rows.Fields()

	if len(fields) == 0 {
		_, err := fmt.Fprintln(w, rows.Command())
		return err
	}

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(names, "\t"))

	for {
		_, row, err := rows.Next()
		if errors.Is(err, iterator.ErrIteratorDone) {
			break
		}

		if err != nil {
			return err
		}

		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}

		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "(%d rows)\n", rows.RowCount())

	return err
}

// printJSON writes the outcome as one indented JSON document.
func printJSON(w io.Writer, rows *pgfetch.Rows) error {
	all, err := rows.All()
	if err != nil {
		return err
	}

	fields := rows.Fields()
	names := make([]string, len(fields))

	for i, f := range fields {
		names[i] = f.Name
	}

	doc := struct {
		Command  string   `json:"command"`
		RowCount int      `json:"rowCount"`
		Fields   []string `json:"fields,omitempty"`
		Rows     [][]any  `json:"rows,omitempty"`
	}{
		Command:  rows.Command(),
		RowCount: rows.RowCount(),
		Fields:   names,
		Rows:     all,
	}

	e := json.NewEncoder(w)
	e.SetIndent("", "  ")

	return e.Encode(doc)
}

// formatValue renders one table cell.
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return `\x` + hex.EncodeToString(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
