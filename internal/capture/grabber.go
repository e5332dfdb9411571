package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"runtime"
)

// Grabber returns the current image of every monitor, in a stable order.
type Grabber interface {
	Grab(ctx context.Context) ([]image.Image, error)
}

// FFmpegGrabber grabs one frame per configured input through ffmpeg's
// platform screen devices (x11grab, avfoundation, gdigrab).
type FFmpegGrabber struct {
	Format string
	Inputs []string
}

// NewFFmpegGrabber fills in the platform defaults for empty arguments.
// primaryOnly keeps only the first input.
func NewFFmpegGrabber(format string, inputs []string, primaryOnly bool) *FFmpegGrabber {
	defFormat, defInput := platformDefaults()
	if format == "" {
		format = defFormat
	}
	if len(inputs) == 0 {
		inputs = []string{defInput}
	}
	if primaryOnly {
		inputs = inputs[:1]
	}
	return &FFmpegGrabber{Format: format, Inputs: inputs}
}

func platformDefaults() (string, string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", "1"
	case "windows":
		return "gdigrab", "desktop"
	default:
		display := os.Getenv("DISPLAY")
		if display == "" {
			display = ":0.0"
		}
		return "x11grab", display
	}
}

func (g *FFmpegGrabber) Grab(ctx context.Context) ([]image.Image, error) {
	frames := make([]image.Image, 0, len(g.Inputs))
	for _, input := range g.Inputs {
		img, err := g.grabOne(ctx, input)
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	return frames, nil
}

func (g *FFmpegGrabber) grabOne(ctx context.Context, input string) (image.Image, error) {
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-loglevel", "error",
		"-f", g.Format,
		"-i", input,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffmpeg failed: %v\nOutput: %s", err, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("ffmpeg failed: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(output))
	if err != nil {
		return nil, fmt.Errorf("decode grabbed frame from %s: %w", input, err)
	}
	return img, nil
}
