package pdfsign

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"driveshare/core/errs"
)

var errSyntax = errors.New("pdf syntax error")

type lexer struct {
	data []byte
	pos  int
}

func (l *lexer) eof() bool { return l.pos >= len(l.data) }

func (l *lexer) skipSpace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhitespace(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

// token reads a run of regular characters.
func (l *lexer) token() string {
	l.skipSpace()
	start := l.pos
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		l.pos++
	}
	return string(l.data[start:l.pos])
}

func (l *lexer) hasPrefix(s string) bool {
	return bytes.HasPrefix(l.data[l.pos:], []byte(s))
}

func (l *lexer) readObject() (Object, error) {
	l.skipSpace()
	if l.eof() {
		return nil, fmt.Errorf("%w: unexpected end of data", errSyntax)
	}
	switch c := l.data[l.pos]; {
	case c == '/':
		l.pos++
		return l.readName(), nil
	case c == '(':
		return l.readLiteral()
	case c == '<' && l.pos+1 < len(l.data) && l.data[l.pos+1] == '<':
		l.pos += 2
		d, err := l.readDict()
		if err != nil {
			return nil, err
		}
		return l.maybeStream(d)
	case c == '<':
		return l.readHex()
	case c == '[':
		l.pos++
		return l.readArray()
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return l.readNumberOrRef()
	}
	switch tok := l.token(); tok {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unexpected token %q at %d", errSyntax, tok, l.pos)
	}
}

func (l *lexer) readName() Name {
	var out []byte
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && l.pos+2 < len(l.data) {
			if v, err := strconv.ParseUint(string(l.data[l.pos+1:l.pos+3]), 16, 8); err == nil {
				out = append(out, byte(v))
				l.pos += 3
				continue
			}
		}
		out = append(out, c)
		l.pos++
	}
	return Name(out)
}

func (l *lexer) readLiteral() (Object, error) {
	l.pos++
	depth := 1
	var out []byte
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return String(out), nil
			}
		case '\\':
			if l.pos >= len(l.data) {
				return nil, fmt.Errorf("%w: unterminated string", errSyntax)
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; i++ {
						v = v*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
			continue
		}
		out = append(out, c)
	}
	return nil, fmt.Errorf("%w: unterminated string", errSyntax)
}

func (l *lexer) readHex() (Object, error) {
	l.pos++
	var digits []byte
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		if c == '>' {
			if len(digits)%2 == 1 {
				digits = append(digits, '0')
			}
			out := make([]byte, len(digits)/2)
			for i := range out {
				v, err := strconv.ParseUint(string(digits[2*i:2*i+2]), 16, 8)
				if err != nil {
					return nil, fmt.Errorf("%w: bad hex string", errSyntax)
				}
				out[i] = byte(v)
			}
			return HexString(out), nil
		}
		if !isWhitespace(c) {
			digits = append(digits, c)
		}
	}
	return nil, fmt.Errorf("%w: unterminated hex string", errSyntax)
}

func (l *lexer) readArray() (Object, error) {
	var out Array
	for {
		l.skipSpace()
		if l.eof() {
			return nil, fmt.Errorf("%w: unterminated array", errSyntax)
		}
		if l.data[l.pos] == ']' {
			l.pos++
			return out, nil
		}
		o, err := l.readObject()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
}

func (l *lexer) readDict() (Dict, error) {
	out := Dict{}
	for {
		l.skipSpace()
		if l.eof() {
			return nil, fmt.Errorf("%w: unterminated dictionary", errSyntax)
		}
		if l.hasPrefix(">>") {
			l.pos += 2
			return out, nil
		}
		if l.data[l.pos] != '/' {
			return nil, fmt.Errorf("%w: dictionary key expected at %d", errSyntax, l.pos)
		}
		l.pos++
		key := l.readName()
		v, err := l.readObject()
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
}

func (l *lexer) maybeStream(d Dict) (Object, error) {
	save := l.pos
	l.skipSpace()
	if !l.hasPrefix("stream") {
		l.pos = save
		return d, nil
	}
	l.pos += len("stream")
	if l.hasPrefix("\r\n") {
		l.pos += 2
	} else if l.hasPrefix("\n") || l.hasPrefix("\r") {
		l.pos++
	}
	start := l.pos
	if n, ok := d["Length"].(int64); ok && n >= 0 && start+int(n) <= len(l.data) {
		end := start + int(n)
		rest := bytes.TrimLeft(l.data[end:], "\r\n \t")
		if bytes.HasPrefix(rest, []byte("endstream")) {
			l.pos = len(l.data) - len(rest) + len("endstream")
			return &Stream{Dict: d, Data: l.data[start:end]}, nil
		}
	}
	idx := bytes.Index(l.data[start:], []byte("endstream"))
	if idx < 0 {
		return nil, fmt.Errorf("%w: missing endstream", errSyntax)
	}
	body := l.data[start : start+idx]
	body = bytes.TrimSuffix(body, []byte("\n"))
	body = bytes.TrimSuffix(body, []byte("\r"))
	l.pos = start + idx + len("endstream")
	return &Stream{Dict: d, Data: body}, nil
}

func (l *lexer) readNumberOrRef() (Object, error) {
	tok := l.token()
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		save := l.pos
		gen := l.token()
		if g, err := strconv.ParseInt(gen, 10, 64); err == nil && n >= 0 && g >= 0 {
			if l.token() == "R" {
				return Ref{Num: int(n), Gen: int(g)}, nil
			}
		}
		l.pos = save
		return n, nil
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad number %q", errSyntax, tok)
	}
	return f, nil
}

type xrefEntry struct {
	offset int
	gen    int
}

// Document is a parsed PDF with a classic cross-reference table.
type Document struct {
	data      []byte
	xref      map[int]xrefEntry
	trailer   Dict
	startXref int
	size      int
	cache     map[int]Object
}

// Page is a leaf of the page tree with its inherited attributes resolved.
type Page struct {
	Ref       Ref
	Dict      Dict
	MediaBox  [4]float64
	Resources Object
}

func (p Page) Width() float64  { return p.MediaBox[2] - p.MediaBox[0] }
func (p Page) Height() float64 { return p.MediaBox[3] - p.MediaBox[1] }

var (
	objHeader     = regexp.MustCompile(`(?m)(\d+)\s+(\d+)\s+obj\b`)
	objHeaderHere = regexp.MustCompile(`^\s*\d+\s+\d+\s+obj\b`)
)

// Parse reads the cross-reference table chain and trailer of data.
func Parse(data []byte) (*Document, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !bytes.Contains(head, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: not a pdf", errs.ErrUnsupportedFormat)
	}
	doc := &Document{data: data, xref: map[int]xrefEntry{}, cache: map[int]Object{}}
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return nil, fmt.Errorf("%w: startxref not found", errs.ErrUnsupportedFormat)
	}
	l := &lexer{data: data, pos: idx + len("startxref")}
	off, err := strconv.Atoi(l.token())
	if err != nil || off < 0 || off >= len(data) {
		return nil, fmt.Errorf("%w: bad startxref", errs.ErrUnsupportedFormat)
	}
	doc.startXref = off
	if err := doc.readXrefChain(off); err != nil {
		if errors.Is(err, errs.ErrUnsupportedFormat) {
			return nil, err
		}
		if err := doc.scanObjects(); err != nil {
			return nil, err
		}
	}
	if _, ok := doc.trailer["Encrypt"]; ok {
		return nil, fmt.Errorf("%w: encrypted pdf", errs.ErrUnsupportedFormat)
	}
	if _, ok := doc.trailer["Root"].(Ref); !ok {
		return nil, fmt.Errorf("%w: trailer has no /Root", errs.ErrUnsupportedFormat)
	}
	size, _ := doc.trailer["Size"].(int64)
	doc.size = int(size)
	for num := range doc.xref {
		if num >= doc.size {
			doc.size = num + 1
		}
	}
	return doc, nil
}

func (d *Document) readXrefChain(off int) error {
	seen := map[int]bool{}
	for off >= 0 {
		if seen[off] {
			return fmt.Errorf("%w: xref loop", errSyntax)
		}
		seen[off] = true
		l := &lexer{data: d.data, pos: off}
		l.skipSpace()
		if !l.hasPrefix("xref") {
			if objHeaderHere.Match(d.data[off:min(off+32, len(d.data))]) {
				return fmt.Errorf("%w: cross-reference streams are not supported", errs.ErrUnsupportedFormat)
			}
			return fmt.Errorf("%w: xref expected at %d", errSyntax, off)
		}
		l.pos += len("xref")
		trailer, err := d.readXrefSection(l)
		if err != nil {
			return err
		}
		if _, ok := trailer["XRefStm"]; ok {
			return fmt.Errorf("%w: hybrid cross-reference files are not supported", errs.ErrUnsupportedFormat)
		}
		if d.trailer == nil {
			d.trailer = trailer
		}
		prev, ok := trailer["Prev"].(int64)
		if !ok {
			return nil
		}
		off = int(prev)
	}
	return nil
}

func (d *Document) readXrefSection(l *lexer) (Dict, error) {
	for {
		tok := l.token()
		if tok == "trailer" {
			o, err := l.readObject()
			if err != nil {
				return nil, err
			}
			trailer, ok := o.(Dict)
			if !ok {
				return nil, fmt.Errorf("%w: trailer is not a dictionary", errSyntax)
			}
			return trailer, nil
		}
		first, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: bad xref subsection %q", errSyntax, tok)
		}
		count, err := strconv.Atoi(l.token())
		if err != nil {
			return nil, fmt.Errorf("%w: bad xref count", errSyntax)
		}
		for i := 0; i < count; i++ {
			offset, err1 := strconv.Atoi(l.token())
			gen, err2 := strconv.Atoi(l.token())
			kind := l.token()
			if err1 != nil || err2 != nil || (kind != "n" && kind != "f") {
				return nil, fmt.Errorf("%w: bad xref entry", errSyntax)
			}
			num := first + i
			if _, ok := d.xref[num]; ok || kind == "f" {
				continue
			}
			if offset <= 0 || offset >= len(d.data) {
				return nil, fmt.Errorf("%w: xref offset out of range", errSyntax)
			}
			d.xref[num] = xrefEntry{offset: offset, gen: gen}
		}
	}
}

// scanObjects rebuilds the object table from "N G obj" headers when the
// xref table is damaged.
func (d *Document) scanObjects() error {
	d.xref = map[int]xrefEntry{}
	for _, m := range objHeader.FindAllSubmatchIndex(d.data, -1) {
		num, _ := strconv.Atoi(string(d.data[m[2]:m[3]]))
		gen, _ := strconv.Atoi(string(d.data[m[4]:m[5]]))
		d.xref[num] = xrefEntry{offset: m[0], gen: gen}
	}
	idx := bytes.LastIndex(d.data, []byte("trailer"))
	if idx < 0 || len(d.xref) == 0 {
		return fmt.Errorf("%w: unreadable cross-reference data", errs.ErrUnsupportedFormat)
	}
	l := &lexer{data: d.data, pos: idx + len("trailer")}
	o, err := l.readObject()
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrUnsupportedFormat, err)
	}
	trailer, ok := o.(Dict)
	if !ok {
		return fmt.Errorf("%w: trailer is not a dictionary", errs.ErrUnsupportedFormat)
	}
	d.trailer = trailer
	return nil
}

// Object returns the indirect object num.
func (d *Document) Object(num int) (Object, error) {
	if o, ok := d.cache[num]; ok {
		return o, nil
	}
	e, ok := d.xref[num]
	if !ok {
		return nil, nil
	}
	l := &lexer{data: d.data, pos: e.offset}
	if _, err := strconv.Atoi(l.token()); err != nil {
		return nil, fmt.Errorf("%w: object %d header", errSyntax, num)
	}
	l.token()
	if l.token() != "obj" {
		return nil, fmt.Errorf("%w: object %d header", errSyntax, num)
	}
	o, err := l.readObject()
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", num, err)
	}
	d.cache[num] = o
	return o, nil
}

// Resolve follows o when it is a reference.
func (d *Document) Resolve(o Object) (Object, error) {
	for i := 0; i < 32; i++ {
		r, ok := o.(Ref)
		if !ok {
			return o, nil
		}
		var err error
		if o, err = d.Object(r.Num); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: reference chain too long", errSyntax)
}

func (d *Document) resolveDict(o Object) (Dict, error) {
	o, err := d.Resolve(o)
	if err != nil {
		return nil, err
	}
	switch v := o.(type) {
	case Dict:
		return v, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: dictionary expected, got %T", errSyntax, o)
}

func (d *Document) resolveArray(o Object) (Array, error) {
	o, err := d.Resolve(o)
	if err != nil {
		return nil, err
	}
	switch v := o.(type) {
	case Array:
		return v, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: array expected, got %T", errSyntax, o)
}

func (d *Document) RootRef() Ref {
	r, _ := d.trailer["Root"].(Ref)
	return r
}

func (d *Document) Catalog() (Dict, error) {
	c, err := d.resolveDict(d.RootRef())
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: missing catalog", errSyntax)
	}
	return c, nil
}

// Pages walks the page tree in document order.
func (d *Document) Pages() ([]Page, error) {
	catalog, err := d.Catalog()
	if err != nil {
		return nil, err
	}
	root, ok := catalog["Pages"].(Ref)
	if !ok {
		return nil, fmt.Errorf("%w: catalog has no /Pages reference", errSyntax)
	}
	var pages []Page
	seen := map[int]bool{}
	var walk func(ref Ref, inherited Dict, depth int) error
	walk = func(ref Ref, inherited Dict, depth int) error {
		if seen[ref.Num] || depth > 64 {
			return fmt.Errorf("%w: page tree loop", errSyntax)
		}
		seen[ref.Num] = true
		node, err := d.resolveDict(ref)
		if err != nil {
			return err
		}
		if node == nil {
			return fmt.Errorf("%w: missing page node %d", errSyntax, ref.Num)
		}
		attrs := inherited.clone()
		for _, k := range []Name{"MediaBox", "Resources", "CropBox", "Rotate"} {
			if v, ok := node[k]; ok {
				attrs[k] = v
			}
		}
		if node.name("Type") == "Page" || node["Kids"] == nil {
			p := Page{Ref: ref, Dict: node, Resources: attrs["Resources"]}
			box, err := d.resolveArray(attrs["MediaBox"])
			if err != nil {
				return err
			}
			p.MediaBox = [4]float64{0, 0, 612, 792}
			if len(box) == 4 {
				for i := range box {
					v, err := d.Resolve(box[i])
					if err != nil {
						return err
					}
					p.MediaBox[i], _ = toFloat(v)
				}
			}
			pages = append(pages, p)
			return nil
		}
		kids, err := d.resolveArray(node["Kids"])
		if err != nil {
			return err
		}
		for _, k := range kids {
			kr, ok := k.(Ref)
			if !ok {
				return fmt.Errorf("%w: page kid is not a reference", errSyntax)
			}
			if err := walk(kr, attrs, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, Dict{}, 0); err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: document has no pages", errs.ErrUnsupportedFormat)
	}
	return pages, nil
}

func (d *Document) generation(num int) int {
	return d.xref[num].gen
}
