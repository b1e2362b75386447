// Package vterm implements a minimal virtual terminal for console capture.
//
// The emulator interprets the byte stream a process writes to a terminal
// (printable text, carriage returns, newlines, and CSI cursor/erase/style
// sequences) and maintains the grid of visible lines that stream would
// produce. Once a line can no longer be rewritten (it scrolls past the
// revision window, or the emulator is flushed) it is finalized: rendered
// back to bytes exactly as written, style sequences included, and handed to
// the emit callback. Thousands of in-place progress-bar redraws collapse to
// the final render, while static output round-trips byte for byte.
//
// Style sequences (SGR) are never decoded. They are carried verbatim and
// attached to the next character written, so finalized lines reproduce the
// original bytes rather than a visual approximation.
package vterm

import "unicode/utf8"

// DefaultScrollback is the number of buffered rows kept revisable before
// the oldest row is finalized. Large enough for any realistic multi-line
// progress panel, small enough to keep memory bounded on pathological
// output volumes.
const DefaultScrollback = 250

// maxCarry bounds the bytes held between writes while waiting for the rest
// of a split escape sequence or UTF-8 rune. Anything longer is junk, not a
// sequence.
const maxCarry = 64

// cell is one rendered codepoint plus the escape bytes attached to it.
// The zero cell is blank: it renders as a space, and trailing blanks are
// trimmed from finalized lines.
type cell struct {
	text  []byte
	style []byte
}

// Emulator reconstructs terminal state from a raw byte stream and emits
// each visible line once it is final. It is not safe for concurrent use;
// callers that feed it from multiple goroutines must serialize access.
type Emulator struct {
	grid [][]cell
	row  int // may point past the last buffered row until a write lands
	col  int

	pending []byte // style bytes awaiting the next printable character
	carry   []byte // split escape sequence or rune from the previous write

	max  int
	emit func(line []byte)
}

// New creates an emulator that keeps at most scrollback rows buffered and
// calls emit with each finalized non-empty line. A scrollback of zero or
// less selects DefaultScrollback.
func New(scrollback int, emit func(line []byte)) *Emulator {
	if scrollback <= 0 {
		scrollback = DefaultScrollback
	}
	return &Emulator{
		grid: make([][]cell, 1),
		max:  scrollback,
		emit: emit,
	}
}

// Rows reports the number of buffered (not yet finalized) rows.
func (e *Emulator) Rows() int {
	return len(e.grid)
}

// Write feeds raw console bytes into the emulator. Bytes are fully
// processed before Write returns, except for a trailing incomplete escape
// sequence or UTF-8 rune, which is held until the next write completes it.
func (e *Emulator) Write(p []byte) {
	data := p
	if len(e.carry) > 0 {
		data = append(e.carry, p...)
		e.carry = nil
	}
	for i := 0; i < len(data); {
		b := data[i]
		switch {
		case b == 0x1b:
			n, ok := e.escape(data[i:])
			if !ok {
				e.stash(data[i:])
				return
			}
			i += n
		case b == '\r':
			e.col = 0
			i++
		case b == '\n':
			e.lineFeed()
			i++
		case b < 0x20 || b == 0x7f:
			// non-printing, no effect
			i++
		default:
			if !utf8.FullRune(data[i:]) {
				e.stash(data[i:])
				return
			}
			_, size := utf8.DecodeRune(data[i:])
			e.putCell(data[i : i+size])
			i += size
		}
	}
}

// Flush finalizes and removes every buffered row in top-to-bottom order,
// emitting the non-empty ones, then resets the grid.
func (e *Emulator) Flush() {
	for _, line := range e.grid {
		e.emitLine(line)
	}
	e.grid = make([][]cell, 1)
	e.row, e.col = 0, 0
	e.pending, e.carry = nil, nil
}

// stash holds an incomplete trailing sequence for the next write.
func (e *Emulator) stash(b []byte) {
	if len(b) > maxCarry {
		return
	}
	e.carry = append(e.carry[:0], b...)
}

// escape consumes one escape sequence starting at b[0] == ESC. It returns
// the number of bytes consumed, or ok=false when the sequence continues
// past the end of b.
func (e *Emulator) escape(b []byte) (n int, ok bool) {
	if len(b) < 2 {
		return 0, false
	}
	if b[1] != '[' {
		// not CSI: the ESC itself is non-printing, drop it and let the
		// next byte be processed normally
		return 1, true
	}
	i := 2
	for i < len(b) && b[i] >= 0x30 && b[i] <= 0x3f {
		i++
	}
	for i < len(b) && b[i] >= 0x20 && b[i] <= 0x2f {
		i++
	}
	if i >= len(b) {
		return 0, false
	}
	final := b[i]
	i++
	if final < 0x40 || final > 0x7e {
		// malformed sequence, discard what was scanned
		return i, true
	}
	e.csi(b[2:i-1], final, b[:i])
	return i, true
}

// csi applies one control sequence. params are the bytes between "ESC ["
// and the final letter, raw is the entire sequence.
func (e *Emulator) csi(params []byte, final byte, raw []byte) {
	switch final {
	case 'm':
		// SGR: preserved verbatim, attached to the next character
		e.pending = append(e.pending, raw...)
	case 'A':
		e.row = max(0, e.row-param(params, 1))
	case 'B':
		// moving down never appends rows; only a newline grows the grid,
		// so the cursor may point past it until a character lands
		e.row += param(params, 1)
	case 'C':
		e.col += param(params, 1)
	case 'D':
		e.col = max(0, e.col-param(params, 1))
	case 'K':
		e.eraseLine(e.row, param(params, 0))
	case 'J':
		e.eraseDisplay(param(params, 0))
	default:
		// consumed with no effect
	}
}

// param parses the first numeric parameter, returning def when it is
// absent or not a plain number.
func param(b []byte, def int) int {
	n, seen := 0, false
	for _, c := range b {
		if c == ';' {
			break
		}
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
		seen = true
	}
	if !seen {
		return def
	}
	return n
}

// putCell writes one codepoint at the cursor, attaching and clearing the
// pending style bytes, and advances the column. Rows and columns grow
// lazily to reach the cursor.
func (e *Emulator) putCell(text []byte) {
	for e.row >= len(e.grid) {
		e.grid = append(e.grid, nil)
	}
	e.trim()
	line := e.grid[e.row]
	for len(line) <= e.col {
		line = append(line, cell{})
	}
	line[e.col] = cell{text: append([]byte(nil), text...), style: e.pending}
	e.grid[e.row] = line
	e.pending = nil
	e.col++
}

// lineFeed moves the cursor to the start of the next row, appending a new
// row only when the cursor sits on the last buffered one.
func (e *Emulator) lineFeed() {
	if e.row == len(e.grid)-1 {
		e.grid = append(e.grid, nil)
	}
	e.row++
	e.col = 0
	e.trim()
}

// trim finalizes rows from the top until the buffer is back within the
// scrollback capacity.
func (e *Emulator) trim() {
	for len(e.grid) > e.max {
		e.emitLine(e.grid[0])
		copy(e.grid, e.grid[1:])
		e.grid[len(e.grid)-1] = nil
		e.grid = e.grid[:len(e.grid)-1]
		if e.row > 0 {
			e.row--
		}
	}
}

// eraseLine blanks cells of row per the CSI K modes: 0 cursor→end,
// 1 start→cursor inclusive, 2 entire row. Blanked cells lose both their
// character and their style bytes.
func (e *Emulator) eraseLine(row, mode int) {
	if row < 0 || row >= len(e.grid) {
		return
	}
	line := e.grid[row]
	switch mode {
	case 0:
		for i := e.col; i < len(line); i++ {
			line[i] = cell{}
		}
	case 1:
		for i := 0; i <= e.col && i < len(line); i++ {
			line[i] = cell{}
		}
	case 2:
		for i := range line {
			line[i] = cell{}
		}
	}
}

// eraseDisplay blanks rows per the CSI J modes: 0 cursor row (as K 0) and
// everything below, 1 cursor row (as K 1) and everything above, 2 every
// buffered row.
func (e *Emulator) eraseDisplay(mode int) {
	switch mode {
	case 0:
		e.eraseLine(e.row, 0)
		for r := e.row + 1; r < len(e.grid); r++ {
			e.eraseLine(r, 2)
		}
	case 1:
		e.eraseLine(e.row, 1)
		for r := 0; r < e.row && r < len(e.grid); r++ {
			e.eraseLine(r, 2)
		}
	case 2:
		for r := range e.grid {
			e.eraseLine(r, 2)
		}
	}
}

// emitLine renders a row to bytes and emits it unless the render is empty.
// Each cell contributes its attached style bytes followed by its text;
// blanked or skipped cells render as spaces, and trailing blanks are
// trimmed.
func (e *Emulator) emitLine(line []cell) {
	end := len(line)
	for end > 0 && line[end-1].text == nil {
		end--
	}
	if end == 0 {
		return
	}
	var out []byte
	for _, c := range line[:end] {
		out = append(out, c.style...)
		if c.text == nil {
			out = append(out, ' ')
		} else {
			out = append(out, c.text...)
		}
	}
	e.emit(out)
}
