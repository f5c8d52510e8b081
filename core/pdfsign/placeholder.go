package pdfsign

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"driveshare/core/errs"
	"driveshare/core/store"
)

// Mark is a control to draw on a page. X and Y are measured from the top
// left corner of the page.
type Mark struct {
	Kind     store.ControlType
	Page     int
	X        float64
	Y        float64
	ImageKey string
	Image    []byte
}

// Layout sizes the drawn marks in PDF points.
type Layout struct {
	ImageWidth  float64
	ImageHeight float64
	FontSize    float64
}

type placeholderRequest struct {
	DocumentID       string
	Marks            []Mark
	FullName         string
	SignedAt         time.Time
	Reason           string
	PlaceholderBytes int
	Layout           Layout
}

func signatureDict(placeholderBytes int, reason string, at time.Time) raw {
	var buf bytes.Buffer
	buf.WriteString("<<\n/Type /Sig\n/Filter /Adobe.PPKLite\n/SubFilter /adbe.pkcs7.detached\n")
	buf.Write(byteRangePlaceholder)
	buf.WriteString("\n/Contents (")
	buf.Write(bytes.Repeat([]byte{'0'}, 2*placeholderBytes))
	buf.WriteString(")\n/Reason ")
	writeLiteral(&buf, encodeWinAnsi(reason))
	buf.WriteString("\n/M ")
	writeLiteral(&buf, []byte("D:"+at.UTC().Format("20060102150405")+"Z"))
	buf.WriteString("\n>>")
	return raw(buf.Bytes())
}

func uniqueName(d Dict, base string) Name {
	name := Name(base)
	for i := 1; ; i++ {
		if _, taken := d[name]; !taken {
			return name
		}
		name = Name(base + "_" + strconv.Itoa(i))
	}
}

type placedImage struct {
	ref  Ref
	w, h int
}

// preparePlaceholder appends the signature dictionary, its widget and the
// drawn controls to src as one incremental update.
func preparePlaceholder(src []byte, req placeholderRequest) ([]byte, error) {
	out, err := buildPlaceholder(src, req)
	if errors.Is(err, errSyntax) {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnsupportedFormat, err)
	}
	return out, err
}

func buildPlaceholder(src []byte, req placeholderRequest) ([]byte, error) {
	doc, err := Parse(src)
	if err != nil {
		return nil, err
	}
	pages, err := doc.Pages()
	if err != nil {
		return nil, err
	}
	u := newUpdate(doc)

	sigRef := u.add(signatureDict(req.PlaceholderBytes, req.Reason, req.SignedAt))
	first := pages[0]
	widgetRef := u.add(Dict{
		"Type":    Name("Annot"),
		"Subtype": Name("Widget"),
		"FT":      Name("Sig"),
		"Rect":    Array{int64(0), int64(0), int64(0), int64(0)},
		"V":       sigRef,
		"T":       String("DOCUMENTID_" + req.DocumentID),
		"F":       int64(4),
		"P":       first.Ref,
	})

	catalog, err := doc.Catalog()
	if err != nil {
		return nil, err
	}
	form, err := doc.resolveDict(catalog["AcroForm"])
	if err != nil {
		return nil, err
	}
	form = form.clone()
	fields, err := doc.resolveArray(form["Fields"])
	if err != nil {
		return nil, err
	}
	form["Fields"] = append(append(Array{}, fields...), widgetRef)
	form["SigFlags"] = int64(3)
	catalog = catalog.clone()
	catalog["AcroForm"] = u.add(form)
	u.replace(doc.RootRef(), catalog)

	edited := map[int]Dict{}
	pageDict := func(i int) Dict {
		if d, ok := edited[i]; ok {
			return d
		}
		d := pages[i].Dict.clone()
		edited[i] = d
		return d
	}

	firstDict := pageDict(0)
	annots, err := doc.resolveArray(firstDict["Annots"])
	if err != nil {
		return nil, err
	}
	firstDict["Annots"] = append(append(Array{}, annots...), widgetRef)

	byPage := map[int][]Mark{}
	for _, m := range req.Marks {
		idx := m.Page - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(pages) {
			return nil, fmt.Errorf("%w: control on page %d, document has %d pages", errs.ErrValidation, m.Page, len(pages))
		}
		byPage[idx] = append(byPage[idx], m)
	}
	indexes := make([]int, 0, len(byPage))
	for i := range byPage {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	images := map[string]placedImage{}
	var fontRef *Ref
	for _, idx := range indexes {
		page := pages[idx]
		res, err := doc.resolveDict(page.Resources)
		if err != nil {
			return nil, err
		}
		res = res.clone()
		xobjects, err := doc.resolveDict(res["XObject"])
		if err != nil {
			return nil, err
		}
		xobjects = xobjects.clone()
		fonts, err := doc.resolveDict(res["Font"])
		if err != nil {
			return nil, err
		}
		fonts = fonts.clone()

		var cw contentWriter
		cw.buf.WriteString("Q\n")
		drawn := 0
		var fontName Name
		height := page.Height()
		for i, m := range byPage[idx] {
			realY := height - m.Y
			if realY < 0 {
				realY = 0
			}
			if realY > height {
				realY = height
			}
			realY += page.MediaBox[1]
			realX := page.MediaBox[0] + m.X

			switch m.Kind {
			case store.ControlSignature:
				if len(m.Image) == 0 {
					continue
				}
				key := m.ImageKey
				if key == "" {
					key = fmt.Sprintf("page%d-mark%d", idx, i)
				}
				placed, ok := images[key]
				if !ok {
					img, mask, w, h, err := imageObjects(m.Image)
					if err != nil {
						return nil, fmt.Errorf("%w: %v", errs.ErrUnsupportedFormat, err)
					}
					if mask != nil {
						img.Dict["SMask"] = u.add(mask)
					}
					placed = placedImage{ref: u.add(img), w: w, h: h}
					images[key] = placed
				}
				name := uniqueName(xobjects, "DriveSig")
				xobjects[name] = placed.ref
				realY -= req.Layout.ImageHeight
				w, h := fitBox(placed.w, placed.h, req.Layout.ImageWidth, req.Layout.ImageHeight)
				cw.image(name, realX, realY, w, h)
				drawn++
			case store.ControlFullName, store.ControlDateSigned:
				text := req.FullName
				if m.Kind == store.ControlDateSigned {
					text = req.SignedAt.Format("01/02/2006")
				}
				if text == "" {
					continue
				}
				if fontRef == nil {
					r := u.add(helveticaFont())
					fontRef = &r
				}
				if fontName == "" {
					fontName = uniqueName(fonts, "DriveHelv")
					fonts[fontName] = *fontRef
				}
				realY -= req.Layout.FontSize * helveticaCapHeight
				cw.text(fontName, req.Layout.FontSize, realX, realY, text)
				drawn++
			}
		}
		if drawn == 0 {
			continue
		}

		res["XObject"] = xobjects
		res["Font"] = fonts
		d := pageDict(idx)
		d["Resources"] = res

		contents, err := pageContents(doc, d["Contents"])
		if err != nil {
			return nil, err
		}
		saveRef := u.add(&Stream{Dict: Dict{}, Data: []byte("q\n")})
		drawRef := u.add(&Stream{Dict: Dict{}, Data: cw.buf.Bytes()})
		d["Contents"] = append(append(Array{saveRef}, contents...), drawRef)
	}

	for idx, d := range edited {
		u.replace(pages[idx].Ref, d)
	}
	return u.bytes(), nil
}

// pageContents flattens /Contents into a list of stream references.
func pageContents(doc *Document, o Object) (Array, error) {
	switch v := o.(type) {
	case nil:
		return nil, nil
	case Array:
		return v, nil
	case Ref:
		target, err := doc.Resolve(v)
		if err != nil {
			return nil, err
		}
		if arr, ok := target.(Array); ok {
			return arr, nil
		}
		return Array{v}, nil
	}
	return nil, fmt.Errorf("%w: unexpected /Contents %T", errSyntax, o)
}
