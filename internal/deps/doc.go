// Package deps checks the external tools and optional Python packages the
// pipeline stages rely on.
//
// CheckBinaries resolves executables on PATH for the check command and the
// preflight step. Guard checks optional packages by importing them with the
// configured interpreter and makes one pip install attempt for any that are
// missing. Guard failures are advisory: they are logged as dependency
// warnings and the stage that needs the package reports the real failure.
package deps
