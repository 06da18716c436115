package main

import (
	"path"

	"github.com/spf13/cobra"

	"davi/internal/backend"
	"davi/internal/storage"
)

func (a *admin) migrateCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list {
				return a.listMigrations()
			}
			if err := a.factory.Migrate(cmd.Context(), a.backend); err != nil {
				return err
			}
			a.printf("migrations applied (%s)\n", a.backend.Type)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "List the embedded migration files and exit")
	return cmd
}

func (a *admin) listMigrations() error {
	if a.backend.Type == backend.MemoryBackend {
		a.printf("memory backend has no migrations\n")
		return nil
	}
	files, err := storage.MigrationFiles(a.backend.Type.String())
	if err != nil {
		return err
	}
	for _, f := range files {
		a.printf("%s\n", path.Base(f))
	}
	return nil
}
