package pdfsign

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"

	"driveshare/config"
	"driveshare/core/errs"
	"driveshare/core/store"
	"driveshare/core/utils"
)

// minimalPDF returns a one page 612x792 document with a classic xref table.
func minimalPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R /Resources << /ProcSet [/PDF /Text] >> /Contents 4 0 R >>",
		"<< /Length 8 >>\nstream\n0 0 m S\n\nendstream",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, o := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func testKeystore(t *testing.T) *Keystore {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Drive Signing Test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	pfx, err := pkcs12.Modern.Encode(key, cert, nil, "keystore-pass")
	require.NoError(t, err)
	ks, err := ParseKeystore(pfx, "keystore-pass")
	require.NoError(t, err)
	return ks
}

func signatureImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	img.Set(0, 0, color.NRGBA{B: 255, A: 255})
	img.Set(3, 1, color.NRGBA{B: 255, A: 128})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testEngine(t *testing.T, ks *Keystore, placeholder int) (*Engine, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "pdf-builds")
	e := NewEngine(config.SigningConfig{
		PlaceholderBytes: placeholder,
		BuildDir:         dir,
		Reason:           "Signed Certificate.",
		FontSize:         12,
		ImageWidth:       110,
		ImageHeight:      55,
	}, ks, utils.NewNopLogger())
	e.now = func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) }
	return e, dir
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "build directory must be cleaned up")
}

func TestSignRoundTrip(t *testing.T) {
	ks := testKeystore(t)
	e, buildDir := testEngine(t, ks, 8192)

	out, err := e.Sign(Request{
		DocumentID: "doc-1",
		Source:     minimalPDF(),
		FullName:   "Ada Lovelace",
		Marks: []Mark{
			{Kind: store.ControlSignature, Page: 1, X: 100, Y: 700, ImageKey: "sig-1", Image: signatureImage(t)},
			{Kind: store.ControlFullName, Page: 1, X: 100, Y: 760},
			{Kind: store.ControlDateSigned, Page: 1, X: 300, Y: 760},
			{Kind: store.ControlSignHere, Page: 1, X: 10, Y: 10},
		},
	})
	require.NoError(t, err)
	requireEmptyDir(t, buildDir)

	br, sig, err := ReadByteRange(out)
	require.NoError(t, err)
	withBrackets := br[2] - br[1]
	require.Equal(t, 0, br[0])
	require.Equal(t, len(out), br[1]+br[3]+withBrackets)
	require.Equal(t, 2*8192, 2*len(sig))
	require.Equal(t, byte('<'), out[br[1]])
	require.Equal(t, byte('>'), out[br[2]-1])

	cert, err := Verify(out)
	require.NoError(t, err)
	require.Equal(t, "Drive Signing Test", cert.Subject.CommonName)

	require.Contains(t, string(out), "/T (DOCUMENTID_doc-1)")
	require.Contains(t, string(out), "/SigFlags 3")
	require.Contains(t, string(out), "/SubFilter /adbe.pkcs7.detached")
	// (100, 700) flips to y = 792 - 700 - 55.
	require.Contains(t, string(out), "q 110 0 0 55 100 37 cm /DriveSig Do Q")
	require.Contains(t, string(out), "(Ada Lovelace) Tj")
	require.Contains(t, string(out), "(03/04/2026) Tj")

	doc, err := Parse(out)
	require.NoError(t, err)
	pages, err := doc.Pages()
	require.NoError(t, err)
	require.Len(t, pages, 1)
	annots, err := doc.resolveArray(pages[0].Dict["Annots"])
	require.NoError(t, err)
	require.Len(t, annots, 1)
	contents, ok := pages[0].Dict["Contents"].(Array)
	require.True(t, ok)
	require.Len(t, contents, 3)
	require.Equal(t, Ref{Num: 4}, contents[1])
}

func TestSignTwiceKeepsBothFields(t *testing.T) {
	ks := testKeystore(t)
	e, _ := testEngine(t, ks, 8192)

	first, err := e.Sign(Request{DocumentID: "a", Source: minimalPDF()})
	require.NoError(t, err)
	second, err := e.Sign(Request{DocumentID: "b", Source: first})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(second, first))

	_, err = Verify(second)
	require.NoError(t, err)

	doc, err := Parse(second)
	require.NoError(t, err)
	catalog, err := doc.Catalog()
	require.NoError(t, err)
	form, err := doc.resolveDict(catalog["AcroForm"])
	require.NoError(t, err)
	fields, err := doc.resolveArray(form["Fields"])
	require.NoError(t, err)
	require.Len(t, fields, 2)
}

func TestSignRejectsSmallPlaceholder(t *testing.T) {
	ks := testKeystore(t)
	e, buildDir := testEngine(t, ks, 64)

	_, err := e.Sign(Request{DocumentID: "doc-2", Source: minimalPDF()})
	require.ErrorIs(t, err, errs.ErrCapacityExceeded)
	require.Contains(t, err.Error(), "signature exceeds placeholder length")
	requireEmptyDir(t, buildDir)
}

func TestSignRejectsControlOutsideDocument(t *testing.T) {
	e, buildDir := testEngine(t, testKeystore(t), 8192)
	_, err := e.Sign(Request{
		DocumentID: "doc-3",
		Source:     minimalPDF(),
		Marks:      []Mark{{Kind: store.ControlFullName, Page: 2}},
		FullName:   "x",
	})
	require.ErrorIs(t, err, errs.ErrValidation)
	requireEmptyDir(t, buildDir)
}

func TestSignWithoutKeystore(t *testing.T) {
	e, _ := testEngine(t, nil, 8192)
	_, err := e.Sign(Request{DocumentID: "d", Source: minimalPDF()})
	require.ErrorIs(t, err, ErrNoKeystore)
}

func TestEmbedSignatureRequiresPlaceholder(t *testing.T) {
	_, err := embedSignature([]byte("%PDF-1.4\n/Contents (00)\n%%EOF"), func([]byte) ([]byte, error) {
		t.Fatal("sign must not be called")
		return nil, nil
	})
	require.ErrorIs(t, err, errs.ErrMalformedState)
}

func TestEmbedSignatureByteRange(t *testing.T) {
	prefix := "%PDF-1.4\n<<" + string(byteRangePlaceholder) + "\n/Contents ("
	pdf := []byte(prefix + "00000000" + ")>>\n%%EOF\n")
	var covered []byte
	out, err := embedSignature(pdf, func(b []byte) ([]byte, error) {
		covered = b
		return []byte{0xAB, 0xCD}, nil
	})
	require.NoError(t, err)
	require.Len(t, out, len(pdf)-1)

	start := len(prefix) - 1
	require.Equal(t, "<abcd0000>", string(out[start:start+10]))
	require.Contains(t, string(out), fmt.Sprintf("/ByteRange [ 0 %d %d %d ]", start, start+10, len(out)-start-10))
	require.Equal(t, len(out)-10, len(covered))
	require.NotContains(t, string(covered), "<abcd")
}

func TestParseFallsBackToObjectScan(t *testing.T) {
	src := minimalPDF()
	idx := bytes.LastIndex(src, []byte("startxref\n"))
	broken := append([]byte{}, src[:idx]...)
	broken = append(broken, []byte("startxref\n3\n%%EOF\n")...)

	doc, err := Parse(broken)
	require.NoError(t, err)
	pages, err := doc.Pages()
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, 612.0, pages[0].Width())
	require.Equal(t, 792.0, pages[0].Height())
}

func TestParseRejectsNonPDF(t *testing.T) {
	_, err := Parse([]byte("hello"))
	require.ErrorIs(t, err, errs.ErrUnsupportedFormat)
}

func TestLexerValues(t *testing.T) {
	l := &lexer{data: []byte(`<< /A#20B (x\(y\)\101) /N -1.5 /R 12 0 R /H <4142> /Arr [1 2 /Z] /T true >>`)}
	o, err := l.readObject()
	require.NoError(t, err)
	d := o.(Dict)
	require.Equal(t, String("x(y)A"), d["A B"])
	require.Equal(t, -1.5, d["N"])
	require.Equal(t, Ref{Num: 12}, d["R"])
	require.Equal(t, HexString("AB"), d["H"])
	require.Equal(t, Array{int64(1), int64(2), Name("Z")}, d["Arr"])
	require.Equal(t, true, d["T"])

	var buf bytes.Buffer
	writeObject(&buf, d)
	again, err := (&lexer{data: buf.Bytes()}).readObject()
	require.NoError(t, err)
	require.Equal(t, d, again)
}
