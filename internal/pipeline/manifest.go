package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"voxclone/internal/services"
)

// RunManifestName is the file written into the model log directory at the
// start of every run.
const RunManifestName = "voice_clone_config.json"

// RunManifest records the parameters a run was started with.
type RunManifest struct {
	RunID          string    `json:"run_id"`
	Role           string    `json:"role"`
	ModelPath      string    `json:"model_path"`
	AudioPath      string    `json:"audio_path,omitempty"`
	Language       string    `json:"language"`
	Device         string    `json:"device"`
	HalfPrecision  bool      `json:"half_precision"`
	SkipSeparation bool      `json:"skip_separation"`
	StartedAt      time.Time `json:"started_at"`
}

func writeRunManifest(dir string, run Run, source string) error {
	manifest := RunManifest{
		RunID:          run.ID,
		Role:           run.Model,
		ModelPath:      dir,
		AudioPath:      source,
		Language:       run.Language.String(),
		Device:         run.Device,
		HalfPrecision:  run.HalfPrecision,
		SkipSeparation: run.SkipSeparation,
		StartedAt:      run.Started.UTC(),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run manifest: %w", err)
	}
	path := filepath.Join(dir, RunManifestName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return services.Wrap(services.ErrWorkspace, "", "write run manifest", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrWorkspace, "", "write run manifest", path, err)
	}
	return nil
}

// ReadRunManifest loads the manifest left in dir by the most recent run.
func ReadRunManifest(dir string) (RunManifest, error) {
	var manifest RunManifest
	data, err := os.ReadFile(filepath.Join(dir, RunManifestName))
	if err != nil {
		return manifest, err
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return manifest, fmt.Errorf("decode run manifest: %w", err)
	}
	return manifest, nil
}
