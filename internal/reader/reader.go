// Package reader turns Coil source text into forms: the runtime values the
// compiler's analyzer consumes. The reader owns all surface syntax; nothing
// downstream of it ever touches source text.
package reader

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"coil/internal/runtime"
)

// ErrIncomplete marks input that ended inside an unterminated form. The
// REPL uses it to keep reading continuation lines instead of reporting a
// syntax error.
var ErrIncomplete = errors.New("incomplete form")

// Error is a syntax error at a source position.
type Error struct {
	File string
	Pos  runtime.Position
	Msg  string

	wrapped error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%s: %s", e.File, e.Pos, e.Msg)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Reader scans one source buffer into successive forms.
type Reader struct {
	file string
	src  string
	pos  int
	line int
	col  int
}

// New creates a Reader over src. The file name is used only for error
// reporting and position metadata.
func New(file, src string) *Reader {
	return &Reader{file: file, src: src, line: 1, col: 1}
}

// ReadAll reads every form in src. On success the returned slice holds the
// forms in source order; it is empty for blank or comment-only input.
func ReadAll(file, src string) ([]runtime.Value, error) {
	r := New(file, src)
	var forms []runtime.Value
	for {
		form, err := r.ReadOne()
		if err == io.EOF {
			return forms, nil
		}
		if err != nil {
			return nil, err
		}
		forms = append(forms, form)
	}
}

// ReadOne reads the next form, returning io.EOF once the input is
// exhausted.
func (r *Reader) ReadOne() (runtime.Value, error) {
	r.skipBlank()
	if r.eof() {
		return nil, io.EOF
	}
	return r.readForm()
}

func (r *Reader) readForm() (runtime.Value, error) {
	pos := r.here()
	c := r.peek()
	switch {
	case c == '(':
		r.next()
		items, err := r.readSeq(')', pos)
		if err != nil {
			return nil, err
		}
		return runtime.List{Items: items, Pos: pos}, nil
	case c == '[':
		r.next()
		items, err := r.readSeq(']', pos)
		if err != nil {
			return nil, err
		}
		return runtime.Vector{Items: items}, nil
	case c == ')' || c == ']':
		return nil, r.errorf(pos, "unmatched delimiter %q", c)
	case c == '\'':
		r.next()
		r.skipBlank()
		if r.eof() {
			return nil, r.incomplete(pos, "quote with no form")
		}
		form, err := r.readForm()
		if err != nil {
			return nil, err
		}
		return runtime.List{
			Items: []runtime.Value{runtime.Symbol{Name: "quote", Pos: pos}, form},
			Pos:   pos,
		}, nil
	case c == '"':
		return r.readString(pos)
	case c == ':':
		r.next()
		name := r.readToken()
		if name == "" {
			return nil, r.errorf(pos, "keyword must have a name")
		}
		return runtime.Keyword(name), nil
	default:
		return r.readAtom(pos)
	}
}

func (r *Reader) readSeq(close rune, open runtime.Position) ([]runtime.Value, error) {
	var items []runtime.Value
	for {
		r.skipBlank()
		if r.eof() {
			return nil, r.incomplete(open, "unterminated %q", string(close))
		}
		if r.peek() == close {
			r.next()
			return items, nil
		}
		item, err := r.readForm()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

func (r *Reader) readString(start runtime.Position) (runtime.Value, error) {
	r.next() // opening quote
	var sb strings.Builder
	for {
		if r.eof() {
			return nil, r.incomplete(start, "unterminated string")
		}
		c := r.next()
		switch c {
		case '"':
			return runtime.Str(sb.String()), nil
		case '\\':
			if r.eof() {
				return nil, r.incomplete(start, "unterminated string")
			}
			esc := r.next()
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			default:
				return nil, r.errorf(start, "unsupported escape \\%c", esc)
			}
		default:
			sb.WriteRune(c)
		}
	}
}

func (r *Reader) readAtom(pos runtime.Position) (runtime.Value, error) {
	tok := r.readToken()
	if tok == "" {
		return nil, r.errorf(pos, "unexpected character %q", r.peek())
	}
	switch tok {
	case "nil":
		return runtime.Nil{}, nil
	case "true":
		return runtime.Bool(true), nil
	case "false":
		return runtime.Bool(false), nil
	}
	if looksNumeric(tok) {
		if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return runtime.Int(i), nil
		}
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return runtime.Float(f), nil
		}
		return nil, r.errorf(pos, "invalid number literal %q", tok)
	}
	return runtime.Symbol{Name: tok, Pos: pos}, nil
}

// looksNumeric reports whether tok must parse as a number. A bare + or -
// is a symbol; a sign followed by a digit is a number.
func looksNumeric(tok string) bool {
	c := tok[0]
	if c >= '0' && c <= '9' {
		return true
	}
	if (c == '+' || c == '-') && len(tok) > 1 {
		d := tok[1]
		return d >= '0' && d <= '9' || d == '.'
	}
	return false
}

func (r *Reader) readToken() string {
	start := r.pos
	for !r.eof() && !isDelimiter(r.peek()) {
		r.next()
	}
	return r.src[start:r.pos]
}

func isDelimiter(c rune) bool {
	switch c {
	case '(', ')', '[', ']', '"', ';', '\'':
		return true
	}
	return c == ',' || unicode.IsSpace(c)
}

func (r *Reader) skipBlank() {
	for !r.eof() {
		c := r.peek()
		switch {
		case c == ',' || unicode.IsSpace(c):
			r.next()
		case c == ';':
			for !r.eof() && r.peek() != '\n' {
				r.next()
			}
		default:
			return
		}
	}
}

func (r *Reader) here() runtime.Position {
	return runtime.Position{Line: r.line, Col: r.col}
}

func (r *Reader) eof() bool { return r.pos >= len(r.src) }

func (r *Reader) peek() rune {
	c, _ := utf8.DecodeRuneInString(r.src[r.pos:])
	return c
}

func (r *Reader) next() rune {
	c, size := utf8.DecodeRuneInString(r.src[r.pos:])
	r.pos += size
	if c == '\n' {
		r.line++
		r.col = 1
	} else {
		r.col++
	}
	return c
}

func (r *Reader) errorf(pos runtime.Position, format string, args ...any) error {
	return &Error{File: r.file, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (r *Reader) incomplete(pos runtime.Position, format string, args ...any) error {
	return &Error{File: r.file, Pos: pos, Msg: fmt.Sprintf(format, args...), wrapped: ErrIncomplete}
}
