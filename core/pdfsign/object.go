// Package pdfsign appends a detached PKCS#7 signature to a PDF using an
// incremental update: placeholder objects are written first, then the byte
// range is resolved and the signature is inlined into the reserved slot.
package pdfsign

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// Object is one of nil, bool, int64, float64, Name, String, HexString,
// Array, Dict, Ref, *Stream or raw.
type Object any

type Name string

type String []byte

type HexString []byte

type Array []Object

type Dict map[Name]Object

type Ref struct {
	Num int
	Gen int
}

type Stream struct {
	Dict Dict
	Data []byte
}

// raw is written verbatim. The signature dictionary uses it so that the
// placeholder bytes have a fixed, searchable layout.
type raw []byte

func (d Dict) clone() Dict {
	out := make(Dict, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func (d Dict) name(key Name) Name {
	n, _ := d[key].(Name)
	return n
}

func toFloat(o Object) (float64, bool) {
	switch v := o.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = trimZeros(s)
	return s
}

func trimZeros(s string) string {
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

func writeObject(buf *bytes.Buffer, o Object) {
	switch v := o.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case int:
		buf.WriteString(strconv.Itoa(v))
	case int64:
		buf.WriteString(strconv.FormatInt(v, 10))
	case float64:
		buf.WriteString(formatNumber(v))
	case Name:
		writeName(buf, v)
	case String:
		writeLiteral(buf, v)
	case HexString:
		fmt.Fprintf(buf, "<%X>", []byte(v))
	case Ref:
		fmt.Fprintf(buf, "%d %d R", v.Num, v.Gen)
	case Array:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeObject(buf, item)
		}
		buf.WriteByte(']')
	case Dict:
		writeDict(buf, v)
	case *Stream:
		d := v.Dict.clone()
		d["Length"] = int64(len(v.Data))
		writeDict(buf, d)
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")
	case raw:
		buf.Write(v)
	default:
		panic(fmt.Sprintf("pdfsign: cannot serialize %T", o))
	}
}

func writeDict(buf *bytes.Buffer, d Dict) {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	buf.WriteString("<<")
	for _, k := range keys {
		buf.WriteByte(' ')
		writeName(buf, Name(k))
		buf.WriteByte(' ')
		writeObject(buf, d[Name(k)])
	}
	buf.WriteString(" >>")
}

func writeName(buf *bytes.Buffer, n Name) {
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < 0x21 || c > 0x7e || c == '#' || isDelimiter(c) {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

func writeLiteral(buf *bytes.Buffer, s []byte) {
	buf.WriteByte('(')
	for _, c := range s {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\r':
			buf.WriteString(`\r`)
		case '\n':
			buf.WriteString(`\n`)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}

func isWhitespace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
