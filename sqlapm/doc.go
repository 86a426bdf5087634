// Package sqlapm instruments database/sql drivers.
//
// An Instrumenter wraps a driver.Driver so that every connection it opens
// reports its statements to an observability.Observer. Because database/sql
// pools obtain all their connections from the driver, wrapping the driver is
// enough to instrument single connections, pools (*sql.DB), connections taken
// with db.Conn, transactions and prepared statements alike.
//
// Each report carries the component ("mysql" or "postgres"), the database
// name parsed from the DSN ("[db-name]" when it cannot be found), the raw
// statement, the duration and the error. A statement counts as failed when
// the driver returns an error; the error and result are handed back to the
// caller unchanged.
//
// Usage:
//
//	inst := sqlapm.NewInstrumenter(sqlapm.ComponentMySQL, apm.OperationObserver())
//	if err := inst.Register("mysql-apm", &mysql.MySQLDriver{}); err != nil {
//	    return err
//	}
//	db, err := sql.Open("mysql-apm", "app:secret@tcp(db:3306)/orders")
//
// Connectors are supported for sql.OpenDB:
//
//	cfg := mysql.NewConfig()
//	connector, err := mysql.NewConnector(cfg)
//	db := sql.OpenDB(inst.WrapConnector(connector, cfg.DBName))
//
// Cluster groups named pools opened lazily through a registered driver, the
// database/sql counterpart of a pool cluster.
package sqlapm
