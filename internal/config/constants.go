package config

const (
	// DefaultDatabasePath is the default SQLite file holding jobs, lines and domain tables
	DefaultDatabasePath = "./importer.db"

	// DefaultUploadDir is where intake stores uploaded source files
	DefaultUploadDir = "./uploads"

	// DefaultStylesheetDir is the root of <module>/<resource>.xsl stylesheets
	DefaultStylesheetDir = "./static/formats/s3csv"
)

// Supported DATABASE_DRIVER values
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)
