package stage

import (
	"fmt"

	"voxclone/internal/config"
	"voxclone/internal/workspace"
)

// Slot names a workspace directory a stage reads from or writes to.
type Slot string

const (
	SlotInput         Slot = "input"
	SlotSeparation    Slot = "separation"
	SlotSliced        Slot = "sliced"
	SlotTranscription Slot = "transcription"
	SlotModelLogs     Slot = "model_logs"
)

// Resolve returns the directory for the slot within layout.
func (s Slot) Resolve(l workspace.Layout) string {
	switch s {
	case SlotInput:
		return l.InputDir
	case SlotSeparation:
		return l.SeparationDir
	case SlotSliced:
		return l.SlicedDir
	case SlotTranscription:
		return l.TranscriptionDir
	case SlotModelLogs:
		return l.ModelLogDir
	default:
		return ""
	}
}

// Definition is the static description of a stage.
type Definition struct {
	Name    Name
	Command string
	Args    []string
	Input   Slot
	Output  Slot
	// Artifact is a file name or glob that must exist in the output slot after
	// a successful run. Empty means the exit status alone decides success.
	Artifact string
	// Fatal is false only for separation, whose missing output can be
	// substituted by the fallback resolver.
	Fatal bool
}

// Ordinal returns the 1-based position of the stage.
func (d Definition) Ordinal() int {
	return d.Name.Ordinal()
}

var contracts = map[Name]struct {
	input, output Slot
	fatal         bool
}{
	Separation:     {SlotInput, SlotSeparation, false},
	Slicing:        {SlotSeparation, SlotSliced, true},
	Transcription:  {SlotSliced, SlotTranscription, true},
	Formatting:     {SlotTranscription, SlotModelLogs, true},
	Training:       {SlotModelLogs, SlotModelLogs, true},
	PostProcessing: {SlotModelLogs, SlotModelLogs, true},
}

// Definitions returns the six stage definitions in execution order, built
// from cfg and then from the stage manifest when one is configured.
func Definitions(cfg *config.Config) ([]Definition, error) {
	commands := cfg.StageCommands()
	defs := make([]Definition, 0, len(Order))
	for _, name := range Order {
		cmd, ok := commands[string(name)]
		if !ok {
			return nil, fmt.Errorf("stage %s: no command configured", name)
		}
		contract := contracts[name]
		defs = append(defs, Definition{
			Name:     name,
			Command:  cmd.Command,
			Args:     append([]string(nil), cmd.Args...),
			Input:    contract.input,
			Output:   contract.output,
			Artifact: cmd.Artifact,
			Fatal:    contract.fatal,
		})
	}
	if cfg.Stages.ManifestPath == "" {
		return defs, nil
	}
	manifest, err := LoadManifest(cfg.Stages.ManifestPath)
	if err != nil {
		return nil, err
	}
	return manifest.Apply(defs)
}
