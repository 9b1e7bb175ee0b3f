package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// WhisperLocalConfig configures the local whisper.cpp backend.
type WhisperLocalConfig struct {
	// ModelPath points at a ggml model file. Defaults to
	// ~/.voicepad/models/ggml-base.bin.
	ModelPath string
	// BinPath is the whisper.cpp CLI. Discovered when empty.
	BinPath string
}

// WhisperLocal transcribes by shelling out to the whisper.cpp CLI with
// one WAV file per utterance. Fully offline.
type WhisperLocal struct {
	modelPath string
	binPath   string
}

// NewWhisperLocal creates the local whisper provider. It never fails;
// a missing binary or model just reports Available() == false.
func NewWhisperLocal(cfg WhisperLocalConfig) *WhisperLocal {
	if cfg.ModelPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.ModelPath = filepath.Join(home, ".voicepad", "models", "ggml-base.bin")
		}
	}
	if cfg.BinPath == "" {
		cfg.BinPath = findWhisperBinary()
	}
	return &WhisperLocal{modelPath: cfg.ModelPath, binPath: cfg.BinPath}
}

func (w *WhisperLocal) Name() string { return "whisper-local" }

func (w *WhisperLocal) DisplayName() string {
	if w.binPath == "" {
		return "Whisper (local, whisper.cpp not installed)"
	}
	return "Whisper (local)"
}

func (w *WhisperLocal) Available() bool {
	if w.binPath == "" || w.modelPath == "" {
		return false
	}
	_, err := os.Stat(w.modelPath)
	return err == nil
}

func (w *WhisperLocal) NewSession(cfg SessionConfig) (Session, error) {
	if !w.Available() {
		return nil, fmt.Errorf("whisper-local: %w", ErrUnavailable)
	}
	return newChunkedSession(cfg, w.transcribe, DefaultVADConfig(), whisperSampleRate), nil
}

func (w *WhisperLocal) transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (string, error) {
	f, err := os.CreateTemp("", "voicepad_stt_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := writeWAV(f, samples, sampleRate); err != nil {
		return "", err
	}

	args := []string{
		"-m", w.modelPath,
		"-f", f.Name(),
		"-oj",
		"--no-prints",
	}
	if language != "" && language != "auto" {
		args = append(args, "-l", language)
	}

	cmd := exec.CommandContext(ctx, w.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper.cpp failed: %w: %s", err, stderr.String())
	}
	return parseWhisperOutput(stdout.Bytes()), nil
}

// parseWhisperOutput extracts text from whisper.cpp's -oj JSON,
// falling back to treating the output as plain text.
func parseWhisperOutput(out []byte) string {
	var parsed struct {
		Transcription []struct {
			Text string `json:"text"`
		} `json:"transcription"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return strings.TrimSpace(string(out))
	}
	var b strings.Builder
	for _, seg := range parsed.Transcription {
		b.WriteString(seg.Text)
	}
	return strings.TrimSpace(b.String())
}

// findWhisperBinary looks for the whisper.cpp CLI under its common
// names. whisper-cli is the Homebrew name.
func findWhisperBinary() string {
	names := []string{"whisper-cli", "whisper-cpp", "whisper"}

	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	home, _ := os.UserHomeDir()
	locations := []string{
		"/opt/homebrew/bin",
		"/usr/local/bin",
		filepath.Join(home, ".local", "bin"),
		filepath.Join(home, "whisper.cpp"),
	}
	for _, loc := range locations {
		for _, name := range names {
			path := filepath.Join(loc, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	if runtime.GOOS == "darwin" {
		execPath, _ := os.Executable()
		bundlePath := filepath.Join(filepath.Dir(execPath), "..", "Resources", "whisper-cli")
		if _, err := os.Stat(bundlePath); err == nil {
			return bundlePath
		}
	}
	return ""
}
