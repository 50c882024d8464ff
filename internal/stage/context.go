package stage

import (
	"strconv"
	"strings"

	"voxclone/internal/workspace"
)

// RunContext carries the immutable parameters of one pipeline run into each
// stage. It is passed by value.
type RunContext struct {
	RunID         string
	Language      string
	Model         string
	Device        string
	HalfPrecision bool
	Python        string
	Source        string
	ToolsDir      string
	Layout        workspace.Layout
}

// Expand substitutes the run parameters into the definition's command
// template and returns the executable and its arguments. Unknown
// placeholders are left untouched.
func (d Definition) Expand(rc RunContext) (string, []string) {
	replacer := strings.NewReplacer(
		"{python}", rc.Python,
		"{language}", rc.Language,
		"{model}", rc.Model,
		"{device}", rc.Device,
		"{half}", strconv.FormatBool(rc.HalfPrecision),
		"{input}", d.Input.Resolve(rc.Layout),
		"{output}", d.Output.Resolve(rc.Layout),
		"{logs}", rc.Layout.ModelLogDir,
		"{source}", rc.Source,
		"{tools}", rc.ToolsDir,
	)
	args := make([]string, len(d.Args))
	for i, arg := range d.Args {
		args[i] = replacer.Replace(arg)
	}
	return replacer.Replace(d.Command), args
}

// Env returns the environment variables handed to stage processes in
// addition to the parent environment. The stage scripts read these instead
// of a shared handoff file.
func (rc RunContext) Env() []string {
	return []string{
		"PYTHONUNBUFFERED=1",
		"VC_LANG=" + rc.Language,
		"VC_ROLE=" + rc.Model,
		"VC_MODEL=" + rc.Layout.ModelLogDir,
		"VC_AUDIO=" + rc.Source,
		"VC_DEVICE=" + rc.Device,
		"VC_RUN_ID=" + rc.RunID,
	}
}
