package deps

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voxclone/internal/logging"
	"voxclone/internal/services"
)

// Outcome classifies the result of ensuring one optional package.
type Outcome string

const (
	AlreadyPresent Outcome = "already_present"
	Installed      Outcome = "installed"
	InstallFailed  Outcome = "install_failed"
)

// Report is the result for one package.
type Report struct {
	Package string
	Outcome Outcome
	Err     error
}

// Guard keeps optional Python packages importable by the stage scripts.
type Guard struct {
	Python         string
	Runner         Runner
	InstallTimeout time.Duration
	Logger         *slog.Logger
}

// NewGuard returns a Guard that runs python through os/exec.
func NewGuard(python string, installTimeout time.Duration, logger *slog.Logger) *Guard {
	return &Guard{
		Python:         python,
		Runner:         ExecRunner{},
		InstallTimeout: installTimeout,
		Logger:         logging.NewComponentLogger(logger, "deps"),
	}
}

// Ensure checks that pkg is importable and, when it is not, makes a single
// pip install attempt followed by a re-check. An InstallFailed outcome comes
// with an error wrapping services.ErrDependency; callers treat it as advisory.
func (g *Guard) Ensure(ctx context.Context, pkg string) (Outcome, error) {
	pkg = strings.TrimSpace(pkg)
	spec, module := splitPackage(pkg)
	if spec == "" {
		return InstallFailed, services.Wrap(services.ErrDependency, "", "ensure package", "empty package name", nil)
	}
	if !validModule(module) {
		return InstallFailed, services.Wrap(services.ErrDependency, "", "ensure package", fmt.Sprintf("invalid module name %q", module), nil)
	}
	if g.importable(ctx, module) {
		return AlreadyPresent, nil
	}

	installCtx := ctx
	if g.InstallTimeout > 0 {
		var cancel context.CancelFunc
		installCtx, cancel = context.WithTimeout(ctx, g.InstallTimeout)
		defer cancel()
	}
	g.logger().Info("installing missing python package",
		logging.String("package", spec),
		logging.String(logging.FieldEventType, "dependency_install"),
	)
	output, err := g.runner().Run(installCtx, g.Python, "-m", "pip", "install", spec)
	if err != nil {
		return InstallFailed, services.Wrap(services.ErrDependency, "", "pip install", spec, fmt.Errorf("%w: %s", err, tail(output)))
	}
	if !g.importable(ctx, module) {
		return InstallFailed, services.Wrap(services.ErrDependency, "", "import check", fmt.Sprintf("%s still not importable as %s after install", spec, module), nil)
	}
	return Installed, nil
}

// EnsureAll runs Ensure for every package. Install failures are logged as
// dependency warnings and never stop the loop.
func (g *Guard) EnsureAll(ctx context.Context, packages []string) []Report {
	reports := make([]Report, 0, len(packages))
	for _, pkg := range packages {
		if ctx.Err() != nil {
			break
		}
		outcome, err := g.Ensure(ctx, pkg)
		reports = append(reports, Report{Package: pkg, Outcome: outcome, Err: err})
		if err != nil {
			logging.WarnWithContext(g.logger(), "optional python package unavailable", "dependency_warning",
				logging.String("package", pkg),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "install it manually with pip inside the stage environment"),
				logging.String(logging.FieldImpact, "formatting stage may fail if it needs this package"),
			)
			continue
		}
		g.logger().Debug("python package ready",
			logging.String("package", pkg),
			logging.String("outcome", string(outcome)),
		)
	}
	return reports
}

// Present reports whether pkg imports under the interpreter without
// attempting an install.
func (g *Guard) Present(ctx context.Context, pkg string) bool {
	_, module := splitPackage(strings.TrimSpace(pkg))
	if !validModule(module) {
		return false
	}
	return g.importable(ctx, module)
}

func (g *Guard) importable(ctx context.Context, module string) bool {
	_, err := g.runner().Run(ctx, g.Python, "-c", "import "+module)
	return err == nil
}

func (g *Guard) runner() Runner {
	if g.Runner == nil {
		return ExecRunner{}
	}
	return g.Runner
}

func (g *Guard) logger() *slog.Logger {
	if g.Logger == nil {
		return logging.NewNop()
	}
	return g.Logger
}

// splitPackage separates a "pip-spec:module" entry. Without an explicit module
// the import name is the distribution name with version constraints removed
// and dashes replaced by underscores.
func splitPackage(pkg string) (spec, module string) {
	spec = pkg
	if idx := strings.LastIndex(pkg, ":"); idx >= 0 {
		spec, module = strings.TrimSpace(pkg[:idx]), strings.TrimSpace(pkg[idx+1:])
	}
	if module == "" {
		name := spec
		if idx := strings.IndexAny(name, "<>=!~[; "); idx >= 0 {
			name = name[:idx]
		}
		module = strings.ReplaceAll(strings.ToLower(name), "-", "_")
	}
	return spec, module
}

func validModule(module string) bool {
	if module == "" {
		return false
	}
	for _, r := range module {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

func tail(output []byte) string {
	text := strings.TrimSpace(string(output))
	lines := strings.Split(text, "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.Join(lines, " | ")
}
