package h264export

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// FindFFmpeg locates ffmpeg. Priority: custom path, FFMPEG_PATH env, PATH,
// then common install locations.
func FindFFmpeg(custom string) (string, error) {
	if custom != "" {
		if _, err := os.Stat(custom); err == nil {
			return custom, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFmpegNotFound, custom)
	}

	if envPath := os.Getenv("FFMPEG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: FFMPEG_PATH %s not found", ErrFFmpegNotFound, envPath)
	}

	execName := "ffmpeg"
	if runtime.GOOS == "windows" {
		execName = "ffmpeg.exe"
	}
	if path, err := exec.LookPath(execName); err == nil {
		return path, nil
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "windows":
		commonPaths = []string{
			`C:\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
		}
	case "darwin":
		commonPaths = []string{
			"/opt/homebrew/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
		}
	default:
		commonPaths = []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/snap/bin/ffmpeg",
		}
	}
	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", ErrFFmpegNotFound
}

// IsFFmpegAvailable reports whether ffmpeg can be located.
func IsFFmpegAvailable() bool {
	_, err := FindFFmpeg("")
	return err == nil
}

// ffmpegArgs builds the command line that turns raw RGBA frames on stdin into
// an Annex B H.264 stream on stdout. B-frames are disabled so decode order is
// presentation order, and access unit delimiters mark every frame boundary.
func ffmpegArgs(width, height int, fps float64, crf int, preset string, bitrate int) []string {
	if crf <= 0 || crf > 51 {
		crf = DefaultCRF
	}
	if preset == "" {
		preset = DefaultPreset
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", fmt.Sprintf("%g", fps),
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", fmt.Sprintf("%d", crf),
		"-bf", "0",
		"-pix_fmt", "yuv420p",
	}
	if bitrate > 0 {
		args = append(args, "-b:v", fmt.Sprintf("%dk", bitrate))
	}
	return append(args,
		"-bsf:v", "h264_metadata=aud=insert",
		"-f", "h264",
		"pipe:1",
	)
}
