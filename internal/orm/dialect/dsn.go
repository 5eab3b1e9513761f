package dialect

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Config describes a database connection
type Config struct {
	Driver   string `mapstructure:"driver"`
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Path     string `mapstructure:"path"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds the driver specific data source name. An explicit URL wins
// over the individual settings.
func (c Config) DSN() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}

	switch strings.ToLower(c.Driver) {
	case "postgres", "postgresql", "pgx":
		return PostgresDSN(c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode), nil
	case "mysql":
		return MySQLDSN(c.Host, c.Port, c.User, c.Password, c.Name), nil
	case "sqlite3":
		return SQLiteDSN(c.Path), nil
	case "sqlite":
		return ModernSQLiteDSN(c.Path), nil
	case "":
		return "", fmt.Errorf("database driver is not configured")
	default:
		return "", fmt.Errorf("unsupported driver: %s", c.Driver)
	}
}

// PostgresDSN builds a postgres:// URL
func PostgresDSN(host string, port int, user, password, name, sslmode string) string {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + name,
	}
	if user != "" {
		if password != "" {
			u.User = url.UserPassword(user, password)
		} else {
			u.User = url.User(user)
		}
	}
	if sslmode != "" {
		u.RawQuery = url.Values{"sslmode": {sslmode}}.Encode()
	}
	return u.String()
}

// MySQLDSN builds a go-sql-driver/mysql DSN with time parsing enabled
func MySQLDSN(host string, port int, user, password, name string) string {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 3306
	}
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// SQLiteDSN builds a mattn/go-sqlite3 DSN with foreign keys enabled
func SQLiteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	return "file:" + path + "?_foreign_keys=1"
}

// ModernSQLiteDSN builds a modernc.org/sqlite DSN with foreign keys enabled
func ModernSQLiteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	return "file:" + path + "?_pragma=foreign_keys(1)"
}
