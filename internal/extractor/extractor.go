package extractor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bdougie/relife/internal/models"
)

// Extractor turns a full-resolution frame into text plus word boxes.
type Extractor interface {
	Extract(ctx context.Context, frame image.Image) (string, []models.WordBox, error)
}

// Tesseract runs the tesseract CLI and parses its TSV output.
type Tesseract struct {
	Binary string
	Lang   string
}

// NewTesseract returns an extractor using the tesseract binary on PATH.
func NewTesseract(lang string) *Tesseract {
	if lang == "" {
		lang = "eng"
	}
	return &Tesseract{Binary: "tesseract", Lang: lang}
}

// Available reports whether the tesseract binary can be found.
func (t *Tesseract) Available() bool {
	_, err := exec.LookPath(t.Binary)
	return err == nil
}

func (t *Tesseract) Extract(ctx context.Context, frame image.Image) (string, []models.WordBox, error) {
	var in bytes.Buffer
	if err := png.Encode(&in, frame); err != nil {
		return "", nil, fmt.Errorf("failed to encode frame for OCR: %w", err)
	}

	cmd := exec.CommandContext(ctx, t.Binary, "stdin", "stdout", "-l", t.Lang, "tsv")
	cmd.Stdin = &in

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", nil, fmt.Errorf("tesseract failed: %v\nOutput: %s", err, string(exitErr.Stderr))
		}
		return "", nil, fmt.Errorf("tesseract failed: %w", err)
	}

	text, words, err := ParseTSV(bytes.NewReader(output))
	if err != nil {
		return "", nil, err
	}
	return text, words, nil
}

const (
	levelPage = 1
	levelWord = 5
)

type tsvRow struct {
	level                    int
	block, par, line         int
	left, top, width, height float64
	conf                     float64
	text                     string
}

// ParseTSV reads tesseract TSV output. Words are joined with single spaces
// inside a line, lines with a newline, and blocks with a blank line.
// Boxes are normalised by the page's own pixel size.
func ParseTSV(r io.Reader) (string, []models.WordBox, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		pageW, pageH float64
		words        = []models.WordBox{}
		blocks       [][]string
		curLine      []string
		lastBlock    = -1
		lastLineKey  = [2]int{-1, -1}
		header       = true
	)

	flushLine := func() {
		if len(curLine) == 0 {
			return
		}
		blocks[len(blocks)-1] = append(blocks[len(blocks)-1], strings.Join(curLine, " "))
		curLine = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if header {
			header = false
			if strings.HasPrefix(line, "level") {
				continue
			}
		}
		row, ok := parseRow(line)
		if !ok {
			continue
		}

		switch row.level {
		case levelPage:
			pageW, pageH = row.width, row.height
			continue
		case levelWord:
		default:
			continue
		}

		text := strings.TrimSpace(row.text)
		if text == "" || row.conf < 0 {
			continue
		}

		if row.block != lastBlock {
			flushLine()
			blocks = append(blocks, nil)
			lastBlock = row.block
			lastLineKey = [2]int{-1, -1}
		}
		if key := [2]int{row.par, row.line}; key != lastLineKey {
			flushLine()
			lastLineKey = key
		}
		curLine = append(curLine, text)

		words = append(words, models.WordBox{
			Text: text,
			X1:   normalise(row.left, pageW),
			Y1:   normalise(row.top, pageH),
			X2:   normalise(row.left+row.width, pageW),
			Y2:   normalise(row.top+row.height, pageH),
		})
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("failed to read OCR output: %w", err)
	}
	if len(blocks) > 0 {
		flushLine()
	}

	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if len(b) > 0 {
			parts = append(parts, strings.Join(b, "\n"))
		}
	}
	return strings.Join(parts, "\n\n"), words, nil
}

func parseRow(line string) (tsvRow, bool) {
	cols := strings.SplitN(line, "\t", 12)
	if len(cols) < 11 {
		return tsvRow{}, false
	}
	ints := make([]int, 6)
	for i, idx := range []int{0, 2, 3, 4, 6, 7} {
		v, err := strconv.Atoi(strings.TrimSpace(cols[idx]))
		if err != nil {
			return tsvRow{}, false
		}
		ints[i] = v
	}
	w, err1 := strconv.Atoi(strings.TrimSpace(cols[8]))
	h, err2 := strconv.Atoi(strings.TrimSpace(cols[9]))
	conf, err3 := strconv.ParseFloat(strings.TrimSpace(cols[10]), 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return tsvRow{}, false
	}
	row := tsvRow{
		level:  ints[0],
		block:  ints[1],
		par:    ints[2],
		line:   ints[3],
		left:   float64(ints[4]),
		top:    float64(ints[5]),
		width:  float64(w),
		height: float64(h),
		conf:   conf,
	}
	if len(cols) == 12 {
		row.text = cols[11]
	}
	return row, true
}

func normalise(v, total float64) float64 {
	if total <= 0 {
		return 0
	}
	n := v / total
	switch {
	case n < 0:
		return 0
	case n > 1:
		return 1
	}
	return n
}
