package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joestump/sqlitekit/internal/config"
	"github.com/joestump/sqlitekit/internal/db"
	"github.com/joestump/sqlitekit/internal/mcpserver"
	"github.com/joestump/sqlitekit/internal/web"
)

// readInput reads a file, or stdin when name is "-".
func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// templateFromArgs builds a template from the SQL argument and --params.
func templateFromArgs(cmd *cobra.Command, args []string) (db.Template, error) {
	t := db.NewTemplate(args[0])
	raw, _ := cmd.Flags().GetString("params")
	if raw == "" {
		return t, nil
	}
	if err := json.Unmarshal([]byte(raw), &t.Params); err != nil {
		return t, fmt.Errorf("--params must be a JSON array of scalars: %w", err)
	}
	return t, nil
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database file and its version table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(database *db.DB) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), database.Path())
				return err
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version TABLE",
		Short: "Print the stored schema version of a table (0 if none)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(database *db.DB) error {
				v, err := database.GetTableVersion(args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
				return err
			})
		},
	}
}

func newEnsureTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensure-table",
		Short: "Create or recreate a table when --version is newer than the stored one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := db.TableSpec{}
			spec.Name, _ = cmd.Flags().GetString("name")
			spec.Version, _ = cmd.Flags().GetInt("version")
			spec.DDL, _ = cmd.Flags().GetString("ddl")
			if file, _ := cmd.Flags().GetString("ddl-file"); file != "" {
				data, err := readInput(cmd, file)
				if err != nil {
					return fmt.Errorf("read ddl: %w", err)
				}
				spec.DDL = string(data)
			}

			return withDB(func(database *db.DB) error {
				n, err := database.EnsureTable(spec)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
				return err
			})
		},
	}
	cmd.Flags().String("name", "", "table name")
	cmd.Flags().Int("version", 1, "schema version the DDL represents")
	cmd.Flags().String("ddl", "", "CREATE TABLE statement")
	cmd.Flags().String("ddl-file", "", "file holding the CREATE TABLE statement (- for stdin)")
	_ = cmd.MarkFlagRequired("name")
	cmd.MarkFlagsOneRequired("ddl", "ddl-file")
	cmd.MarkFlagsMutuallyExclusive("ddl", "ddl-file")
	return cmd
}

func newStatementCmd(use, short string, run func(cmd *cobra.Command, database *db.DB, t db.Template) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " SQL",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := templateFromArgs(cmd, args)
			if err != nil {
				return err
			}
			return withDB(func(database *db.DB) error {
				return run(cmd, database, t)
			})
		},
	}
	cmd.Flags().String("params", "", `JSON array of values bound to the ? placeholders, e.g. '["Jack", 21]'`)
	return cmd
}

func newExecCmd() *cobra.Command {
	return newStatementCmd("exec", "Run a statement and print the number of rows changed",
		func(cmd *cobra.Command, database *db.DB, t db.Template) error {
			n, err := database.ExecuteNonQuery(t)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		})
}

func newScalarCmd() *cobra.Command {
	return newStatementCmd("scalar", "Run a query and print the first column of the first row as JSON",
		func(cmd *cobra.Command, database *db.DB, t db.Template) error {
			v, err := database.ExecuteScalar(t)
			if err != nil {
				return err
			}
			return printJSON(cmd, v)
		})
}

func newQueryCmd() *cobra.Command {
	return newStatementCmd("query", "Run a query and print the rows as a JSON array",
		func(cmd *cobra.Command, database *db.DB, t db.Template) error {
			out, err := database.QueryJSON(t)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		})
}

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch FILE",
		Short: "Run a JSON array of statements in one transaction (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return fmt.Errorf("read batch: %w", err)
			}
			var templates []db.Template
			if err := json.Unmarshal(data, &templates); err != nil {
				return fmt.Errorf("parse batch: %w", err)
			}

			return withDB(func(database *db.DB) error {
				n, err := database.ExecuteBatch(templates)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
				return err
			})
		},
	}
}

func newUpsertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Insert or replace a JSON array of row objects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, _ := cmd.Flags().GetString("table")
			columns, _ := cmd.Flags().GetStringSlice("columns")
			file, _ := cmd.Flags().GetString("rows")

			data, err := readInput(cmd, file)
			if err != nil {
				return fmt.Errorf("read rows: %w", err)
			}
			var rows []db.Row
			if err := json.Unmarshal(data, &rows); err != nil {
				return fmt.Errorf("parse rows: %w", err)
			}

			return withDB(func(database *db.DB) error {
				n, err := database.Upsert(db.UpsertSpec{Table: table, Columns: columns}, rows)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
				return err
			})
		},
	}
	cmd.Flags().String("table", "", "target table")
	cmd.Flags().StringSlice("columns", nil, "comma-separated column names")
	cmd.Flags().String("rows", "-", "JSON file of row objects (- for stdin)")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("columns")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			database, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			srv := web.New(&cfg, database)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				log.Info("shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http shutdown: %w", err)
			}
			return <-errCh
		},
	}
	cmd.Flags().String("listen", config.DefaultListenAddr, "HTTP listen address")
	_ = viper.BindPFlag("listen_addr", cmd.Flags().Lookup("listen"))
	return cmd
}

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the database as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			database, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			err = mcpserver.Run(ctx, database, cfg.MCPReadOnly)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Bool("read-only", false, "expose only the read tools")
	_ = viper.BindPFlag("mcp_read_only", cmd.Flags().Lookup("read-only"))
	return cmd
}
