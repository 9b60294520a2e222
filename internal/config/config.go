package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings" // strings splits list-valued variables
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The struct is built once at startup and passed
// into handlers; nothing mutates it afterwards.
type Config struct {
	Env        string // application environment (e.g. "dev", "prod")
	Port       string // HTTP port to listen on
	DBUser     string // database username
	DBPass     string // database password (optional)
	DBHost     string // database host address
	DBPort     string // database port number
	DBName     string // database name
	JWTSecret  string // secret used to sign session tokens
	BcryptCost int    // bcrypt cost for password hashing

	// TokenTTLMin controls the exp claim on session tokens.  Zero means the
	// token carries no expiry, matching the legacy behaviour this service
	// replaces; any positive value adds exp = now + TTL.
	TokenTTLMin int

	// DefaultRoleID is the role granted to self-registered accounts.
	DefaultRoleID uint64
	// AdminRoleID gates the user-management endpoints.  Zero disables the
	// role check, leaving those routes behind authentication only.
	AdminRoleID uint64
	// DefaultUserStatus is the lifecycle status assigned at registration
	// (the domain-specific pending value).
	DefaultUserStatus int
	// DeleteUserStatus is the status written by soft deletes.
	DeleteUserStatus int

	// OTPLength and OTPTTLMin shape password-reset codes.
	OTPLength int
	OTPTTLMin int

	// RestrictedOrigins lists normalized origin hosts from which accounts
	// holding only the default role may not open a session.
	RestrictedOrigins []string

	// SMTP settings for the OTP / welcome mailer.  When host or sender is
	// empty, mail sending is skipped and logged.
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	MailFrom string
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:        must("APP_ENV"),
		Port:       must("APP_PORT"),
		DBUser:     must("DB_USER"),
		DBPass:     os.Getenv("DB_PASS"), // empty allowed
		DBHost:     must("DB_HOST"),
		DBPort:     must("DB_PORT"),
		DBName:     must("DB_NAME"),
		JWTSecret:  must("JWT_SECRET"),
		BcryptCost: mustInt("BCRYPT_COST"),

		TokenTTLMin: optInt("TOKEN_TTL_MIN", 0),

		DefaultRoleID:     uint64(mustInt("DEFAULT_ROLE_ID")),
		AdminRoleID:       uint64(optInt("ADMIN_ROLE_ID", 0)),
		DefaultUserStatus: mustInt("DEFAULT_USER_STATUS_ID"),
		DeleteUserStatus:  optInt("DELETE_USER_STATUS_ID", 2),

		OTPLength: optInt("OTP_LENGTH", 6),
		OTPTTLMin: optInt("OTP_TTL_MIN", 10),

		RestrictedOrigins: splitList(os.Getenv("RESTRICTED_ORIGINS")),

		SMTPHost: os.Getenv("SMTP_HOST"),
		SMTPPort: optInt("SMTP_PORT", 587),
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
		MailFrom: os.Getenv("MAIL_FROM"),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// optInt reads an optional integer variable, falling back to def when the
// variable is unset or malformed.
func optInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// splitList parses a comma-separated env value into trimmed, lower-cased,
// non-empty entries.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
