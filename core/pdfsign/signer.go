package pdfsign

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/digitorus/pkcs7"
	"software.sslmate.com/src/go-pkcs12"

	"driveshare/core/errs"
)

const byteRangeSentinel = 123456789

var byteRangePlaceholder = []byte(fmt.Sprintf("/ByteRange [ 0 %d %d %d ]", byteRangeSentinel, byteRangeSentinel, byteRangeSentinel))

// Keystore holds the certificate and key documents are signed with.
type Keystore struct {
	Key   crypto.PrivateKey
	Cert  *x509.Certificate
	Chain []*x509.Certificate
}

func LoadKeystore(path, password string) (*Keystore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	return ParseKeystore(data, password)
}

// ParseKeystore decodes a PKCS#12 container.
func ParseKeystore(data []byte, password string) (*Keystore, error) {
	key, cert, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, fmt.Errorf("decode keystore: %w", err)
	}
	return &Keystore{Key: key, Cert: cert, Chain: chain}, nil
}

// SignDetached returns a DER encoded detached SignedData over content using
// SHA-256. Content type, message digest and signing time are signed
// attributes.
func (k *Keystore) SignDetached(content []byte) ([]byte, error) {
	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, fmt.Errorf("signed data: %w", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSignerChain(k.Cert, k.Key, k.Chain, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("add signer: %w", err)
	}
	sd.Detach()
	der, err := sd.Finish()
	if err != nil {
		return nil, fmt.Errorf("finish signature: %w", err)
	}
	return der, nil
}

type signFunc func(content []byte) ([]byte, error)

// embedSignature resolves the byte range of a prepared document, signs the
// bytes outside the /Contents slot and writes the signature into it.
func embedSignature(pdf []byte, sign signFunc) ([]byte, error) {
	pdf = bytes.TrimSuffix(pdf, []byte("\n"))

	brPos := bytes.Index(pdf, byteRangePlaceholder)
	if brPos < 0 {
		return nil, fmt.Errorf("%w: could not find ByteRange placeholder: %s", errs.ErrMalformedState, byteRangePlaceholder)
	}
	brEnd := brPos + len(byteRangePlaceholder)
	contentsTag := bytes.Index(pdf[brEnd:], []byte("/Contents "))
	if contentsTag < 0 {
		return nil, fmt.Errorf("%w: could not find /Contents placeholder", errs.ErrMalformedState)
	}
	contentsTag += brEnd
	open := bytes.IndexByte(pdf[contentsTag:], '(')
	if open < 0 {
		return nil, fmt.Errorf("%w: could not find /Contents placeholder", errs.ErrMalformedState)
	}
	start := contentsTag + open
	closing := bytes.IndexByte(pdf[start:], ')')
	if closing < 0 {
		return nil, fmt.Errorf("%w: unterminated /Contents placeholder", errs.ErrMalformedState)
	}
	withBrackets := closing + 1
	capacity := withBrackets - 2

	byteRange := [4]int{0, start, start + withBrackets, len(pdf) - (start + withBrackets)}
	actual := []byte(fmt.Sprintf("/ByteRange [ %d %d %d %d ]", byteRange[0], byteRange[1], byteRange[2], byteRange[3]))
	if len(actual) > len(byteRangePlaceholder) {
		return nil, fmt.Errorf("%w: document too large for ByteRange placeholder", errs.ErrCapacityExceeded)
	}
	actual = append(actual, bytes.Repeat([]byte{' '}, len(byteRangePlaceholder)-len(actual))...)

	out := make([]byte, len(pdf))
	copy(out, pdf)
	copy(out[brPos:], actual)

	signed := make([]byte, 0, len(out)-withBrackets)
	signed = append(signed, out[:byteRange[1]]...)
	signed = append(signed, out[byteRange[2]:]...)

	der, err := sign(signed)
	if err != nil {
		return nil, err
	}
	if 2*len(der) > capacity {
		return nil, fmt.Errorf("%w: signature exceeds placeholder length: %d > %d", errs.ErrCapacityExceeded, 2*len(der), capacity)
	}
	sig := make([]byte, capacity)
	for i := range sig {
		sig[i] = '0'
	}
	hex.Encode(sig, der)

	copy(out[start:], "<")
	copy(out[start+1:], sig)
	copy(out[start+1+capacity:], ">")
	return out, nil
}

// ReadByteRange returns the /ByteRange values and the raw signature of a
// signed document.
func ReadByteRange(pdf []byte) ([4]int, []byte, error) {
	var br [4]int
	idx := bytes.LastIndex(pdf, []byte("/ByteRange ["))
	if idx < 0 {
		return br, nil, fmt.Errorf("%w: document has no /ByteRange", errs.ErrNotFound)
	}
	l := &lexer{data: pdf, pos: idx + len("/ByteRange [")}
	for i := range br {
		v, err := strconv.Atoi(l.token())
		if err != nil {
			return br, nil, fmt.Errorf("%w: bad /ByteRange", errs.ErrMalformedState)
		}
		br[i] = v
	}
	if br[1] < 0 || br[2] < br[1]+2 || br[2]+br[3] > len(pdf) || pdf[br[1]] != '<' || pdf[br[2]-1] != '>' {
		return br, nil, fmt.Errorf("%w: /ByteRange does not frame the signature", errs.ErrMalformedState)
	}
	der := make([]byte, (br[2]-br[1]-2)/2)
	if _, err := hex.Decode(der, pdf[br[1]+1:br[2]-1]); err != nil {
		return br, nil, fmt.Errorf("%w: signature is not hex", errs.ErrMalformedState)
	}
	return br, der, nil
}

// Verify checks the embedded signature against the bytes it covers and
// returns the signing certificate.
func Verify(pdf []byte) (*x509.Certificate, error) {
	br, der, err := ReadByteRange(pdf)
	if err != nil {
		return nil, err
	}
	p7, err := pkcs7.Parse(trimDERPadding(der))
	if err != nil {
		return nil, fmt.Errorf("%w: parse signature: %v", errs.ErrMalformedState, err)
	}
	content := make([]byte, 0, br[1]+br[3])
	content = append(content, pdf[br[0]:br[0]+br[1]]...)
	content = append(content, pdf[br[2]:br[2]+br[3]]...)
	p7.Content = content
	if err := p7.Verify(); err != nil {
		return nil, fmt.Errorf("%w: signature does not verify: %v", errs.ErrValidation, err)
	}
	return p7.GetOnlySigner(), nil
}

// trimDERPadding drops the zero fill after the outer DER element.
func trimDERPadding(der []byte) []byte {
	if len(der) < 2 || der[0] != 0x30 {
		return der
	}
	n := int(der[1])
	hdr := 2
	if n&0x80 != 0 {
		octets := n & 0x7f
		if octets == 0 || octets > 4 || len(der) < 2+octets {
			return der
		}
		n = 0
		for _, b := range der[2 : 2+octets] {
			n = n<<8 | int(b)
		}
		hdr += octets
	}
	if hdr+n > len(der) {
		return der
	}
	return der[:hdr+n]
}
