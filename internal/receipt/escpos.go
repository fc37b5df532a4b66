package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ESC/POS control bytes.
const (
	esc = 0x1B
	gs  = 0x1D
	lf  = 0x0A
)

// Text alignment selectors.
const (
	AlignLeft   = 0
	AlignCenter = 1
	AlignRight  = 2
)

// Character size selectors for GS !.
const (
	FontNormal = 0x00
	FontDouble = 0x11
	FontWide   = 0x10
	FontTall   = 0x01
)

// Barcode symbology selectors for GS k (function B).
const (
	BarcodeCode39  = 69
	BarcodeCode128 = 73
)

// Document builds an ESC/POS byte stream for thermal printers. All text
// lines are constrained to the configured character width: 32 columns for
// 58mm paper, 48 for 80mm.
type Document struct {
	buf   bytes.Buffer
	width int
}

// NewDocument creates an initialised ESC/POS document with the given width.
func NewDocument(charWidth int) *Document {
	if charWidth <= 0 {
		charWidth = 48
	}
	d := &Document{width: charWidth}
	d.Init()
	return d
}

// Width returns the configured character width.
func (d *Document) Width() int { return d.width }

// Init sends the ESC @ (initialise printer) command.
func (d *Document) Init() *Document {
	d.buf.Write([]byte{esc, '@'})
	return d
}

// Feed sends n line feeds.
func (d *Document) Feed(n int) *Document {
	for i := 0; i < n; i++ {
		d.buf.WriteByte(lf)
	}
	return d
}

// SetAlign sets text alignment: AlignLeft, AlignCenter, AlignRight.
func (d *Document) SetAlign(align int) *Document {
	d.buf.Write([]byte{esc, 'a', byte(align)})
	return d
}

// SetBold enables or disables emphasised text.
func (d *Document) SetBold(on bool) *Document {
	b := byte(0)
	if on {
		b = 1
	}
	d.buf.Write([]byte{esc, 'E', b})
	return d
}

// SetFontSize sets the character size, one of the Font constants.
func (d *Document) SetFontSize(size byte) *Document {
	d.buf.Write([]byte{gs, '!', size})
	return d
}

// Text writes a line truncated to the document width, followed by a feed.
func (d *Document) Text(s string) *Document {
	d.buf.WriteString(clip(s, d.width))
	d.buf.WriteByte(lf)
	return d
}

// Textf writes a formatted line followed by a feed.
func (d *Document) Textf(format string, args ...any) *Document {
	return d.Text(fmt.Sprintf(format, args...))
}

// Separator prints a full-width rule of the given character.
func (d *Document) Separator(char byte) *Document {
	d.buf.WriteString(strings.Repeat(string(char), d.width))
	d.buf.WriteByte(lf)
	return d
}

// KeyValue prints a left-aligned key and right-aligned value on one line.
func (d *Document) KeyValue(key, value string) *Document {
	spaces := d.width - utf8.RuneCountInString(key) - utf8.RuneCountInString(value)
	if spaces < 1 {
		spaces = 1
	}
	d.buf.WriteString(key)
	d.buf.WriteString(strings.Repeat(" ", spaces))
	d.buf.WriteString(value)
	d.buf.WriteByte(lf)
	return d
}

// Columns prints fixed-width columns: text columns left-aligned and
// padded, numeric columns right-aligned, the whole line clipped to width.
func (d *Document) Columns(cols []Column) *Document {
	var line strings.Builder
	for i, c := range cols {
		if i > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(c.render())
	}
	return d.Text(line.String())
}

// Column is one cell of a fixed-width table row.
type Column struct {
	Text       string
	Width      int
	RightAlign bool
}

func (c Column) render() string {
	text := clip(c.Text, c.Width)
	pad := c.Width - utf8.RuneCountInString(text)
	if pad <= 0 {
		return text
	}
	if c.RightAlign {
		return strings.Repeat(" ", pad) + text
	}
	return text + strings.Repeat(" ", pad)
}

// Barcode emits height/width/HRI selectors followed by a GS k function-B
// barcode for the given payload.
func (d *Document) Barcode(symbology byte, payload string) *Document {
	if payload == "" {
		return d
	}
	if len(payload) > 255 {
		payload = payload[:255]
	}
	d.buf.Write([]byte{gs, 'h', 64}) // barcode height in dots
	d.buf.Write([]byte{gs, 'w', 2})  // module width
	d.buf.Write([]byte{gs, 'H', 2})  // HRI below the barcode
	d.buf.Write([]byte{gs, 'k', symbology, byte(len(payload))})
	d.buf.WriteString(payload)
	return d
}

// Cut sends the paper cut command (full cut).
func (d *Document) Cut() *Document {
	d.buf.Write([]byte{gs, 'V', 0x00})
	return d
}

// Bytes returns the accumulated ESC/POS byte stream.
func (d *Document) Bytes() []byte {
	return d.buf.Bytes()
}

// clip truncates to width characters, never splitting a multi-byte rune.
func clip(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width])
}
