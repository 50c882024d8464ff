package config

const (
	defaultInputDir              = "~/.local/share/voxclone/input"
	defaultOutputDir             = "~/.local/share/voxclone/output"
	defaultLogsDir               = "~/.local/share/voxclone/logs"
	defaultToolsDir              = "~/.local/share/voxclone/tools"
	defaultStateDir              = "~/.local/state/voxclone"
	defaultLanguage              = "en"
	defaultDevice                = "cuda"
	defaultSourceFile            = "audio.mp3"
	defaultPythonInterpreter     = "python"
	defaultPythonInstallTimeout  = 600
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFmpegSampleRate      = 44100
	defaultFFmpegChannels        = 2
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultSeparationArtifact    = "vocal.wav"
	defaultSlicingArtifact       = "*.wav"
	defaultTranscriptionArtifact = "*.list"
	defaultPythonPlaceholder     = "{python}"
)

// Packages the formatting stage imports opportunistically for Chinese text.
var defaultPythonPackages = []string{"jieba_fast", "pypinyin"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InputDir:  defaultInputDir,
			OutputDir: defaultOutputDir,
			LogsDir:   defaultLogsDir,
			ToolsDir:  defaultToolsDir,
			StateDir:  defaultStateDir,
		},
		Run: Run{
			Language:      defaultLanguage,
			Device:        defaultDevice,
			HalfPrecision: true,
			SourceFile:    defaultSourceFile,
		},
		Python: Python{
			Interpreter:    defaultPythonInterpreter,
			Packages:       append([]string(nil), defaultPythonPackages...),
			InstallTimeout: defaultPythonInstallTimeout,
		},
		Stages: defaultStages(),
		FFmpeg: FFmpeg{
			Binary:     defaultFFmpegBinary,
			SampleRate: defaultFFmpegSampleRate,
			Channels:   defaultFFmpegChannels,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			RunCompleted:   true,
			RunFailed:      true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

func defaultStages() Stages {
	return Stages{
		Separation: StageCommand{
			Command:  defaultPythonPlaceholder,
			Args:     []string{"tools/uvr5/uvr_pipe.py", "{device}", "{half}", "{input}", "{output}"},
			Artifact: defaultSeparationArtifact,
		},
		Slicing: StageCommand{
			Command: defaultPythonPlaceholder,
			Args: []string{
				"tools/slice_audio.py", "{input}", "{output}",
				"-34", "4000", "300", "10", "500", "0.9", "0.25", "0", "1",
			},
			Artifact: defaultSlicingArtifact,
		},
		Transcription: StageCommand{
			Command:  defaultPythonPlaceholder,
			Args:     []string{"tools/asr/funasr_asr.py", "-i", "{input}", "-o", "{output}", "-l", "{language}", "-d", "{device}"},
			Artifact: defaultTranscriptionArtifact,
		},
		Formatting: StageCommand{
			Command: defaultPythonPlaceholder,
			Args:    []string{"GPT_SoVITS/prepare_datasets.py", "-i", "{input}", "-n", "{model}", "-d", "{device}"},
		},
		Training: StageCommand{
			Command: defaultPythonPlaceholder,
			Args:    []string{"GPT_SoVITS/train.py", "-n", "{model}", "-d", "{device}"},
		},
		PostProcessing: StageCommand{
			Command: defaultPythonPlaceholder,
			Args:    []string{"GPT_SoVITS/export.py", "-n", "{model}", "-d", "{device}"},
		},
	}
}
