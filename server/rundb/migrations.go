package rundb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE run(
			id INTEGER PRIMARY KEY,
			started_at INT NOT NULL,
			finished_at INT,
			model TEXT NOT NULL,
			output_dir TEXT NOT NULL,
			prompt_hash TEXT NOT NULL DEFAULT '',
			classes BLOB,
			confidence_threshold REAL NOT NULL,
			frames INT NOT NULL DEFAULT 0,
			parse_fallbacks INT NOT NULL DEFAULT 0,
			geometry_drops INT NOT NULL DEFAULT 0,
			inference_failures INT NOT NULL DEFAULT 0
		);

		CREATE INDEX idx_run_started_at ON run(started_at);
	`))

	return migs
}
