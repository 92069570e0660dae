package logger

// Component-specific logger functions

// Introspect returns a logger for schema introspection operations
func Introspect() Logger {
	return WithField("component", "introspect")
}

// Plan returns a logger for planning operations
func Plan() Logger {
	return WithField("component", "plan")
}

// Migrate returns a logger for migration execution operations
func Migrate() Logger {
	return WithField("component", "migrate")
}

// Backfill returns a logger for backfill operations
func Backfill() Logger {
	return WithField("component", "backfill")
}

// CLI returns a logger for CLI operations
func CLI() Logger {
	return WithField("component", "cli")
}

// DB returns a logger for database operations
func DB() Logger {
	return WithField("component", "db")
}
