package mysql

import (
	"fmt"
	"regexp"

	"github.com/aretw0/sqlsession/pkg/domain"
)

// Schema names the session table and its three columns.
type Schema struct {
	Table        string
	IDColumn     string
	ExpiryColumn string
	DataColumn   string
}

// DefaultSchema returns the conventional sessions(sid, expiry, data) layout.
func DefaultSchema() Schema {
	return Schema{
		Table:        "sessions",
		IDColumn:     "sid",
		ExpiryColumn: "expiry",
		DataColumn:   "data",
	}
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]{0,63}$`)

// Validate checks that every name is a plain unquoted identifier.
func (s Schema) Validate() error {
	for label, name := range map[string]string{
		"table":         s.Table,
		"id column":     s.IDColumn,
		"expiry column": s.ExpiryColumn,
		"data column":   s.DataColumn,
	} {
		if !identifier.MatchString(name) {
			return fmt.Errorf("%w: %s %q is not a valid identifier", domain.ErrInvalidConfig, label, name)
		}
	}
	return nil
}

// statements holds the parameterized SQL for one schema, built once.
type statements struct {
	selectRow     string
	selectForUpd  string
	insert        string
	upsert        string
	delete        string
	deleteExpired string
}

func (s Schema) statements() statements {
	t, id, exp, data := quote(s.Table), quote(s.IDColumn), quote(s.ExpiryColumn), quote(s.DataColumn)
	sel := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ?", exp, data, t, id)
	return statements{
		selectRow:    sel,
		selectForUpd: sel + " FOR UPDATE",
		insert:       fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?)", t, id, exp, data),
		upsert: fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE %s = ?, %s = ?",
			t, id, exp, data, exp, data),
		delete:        fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t, id),
		deleteExpired: fmt.Sprintf("DELETE FROM %s WHERE %s < ?", t, exp),
	}
}

func quote(name string) string {
	return "`" + name + "`"
}

// CreateTable returns InnoDB DDL for the schema. The expiry index keeps the
// collector's range delete off a full scan.
func (s Schema) CreateTable() string {
	t, id, exp, data := quote(s.Table), quote(s.IDColumn), quote(s.ExpiryColumn), quote(s.DataColumn)
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n"+
		"  %s VARCHAR(128) NOT NULL,\n"+
		"  %s BIGINT NOT NULL,\n"+
		"  %s MEDIUMBLOB NOT NULL,\n"+
		"  PRIMARY KEY (%s),\n"+
		"  KEY %s (%s)\n"+
		") ENGINE=InnoDB", t, id, exp, data, id, quote(s.Table+"_"+s.ExpiryColumn+"_idx"), exp)
}
