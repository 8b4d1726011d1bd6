package db

// Config describes the database connection. Type selects the dialector
// (postgres, mysql or sqlite); for sqlite, Name is the database file path
// and the remaining connection fields are ignored.
type Config struct {
	Type     string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string

	// Pool settings. The Conn*Time values are in seconds; zero leaves
	// the driver default in place.
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}
