package emailreader

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/htmlindex"
)

// partHeader is the subset of MIME headers primaryText needs.
type partHeader struct {
	contentType string
	encoding    string
}

func headerOf(h mail.Header) partHeader {
	return partHeader{contentType: h.Get("Content-Type"), encoding: h.Get("Content-Transfer-Encoding")}
}

// primaryText returns the text/plain body, falling back to the text of the
// text/html body. Nested multiparts are searched depth first.
func primaryText(h partHeader, body io.Reader) (string, error) {
	plain, html, err := collectText(h, body)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(plain) != "" {
		return strings.TrimSpace(plain), nil
	}
	if html != "" {
		doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(html))
		if docErr != nil {
			return "", fmt.Errorf("parse html body: %w", docErr)
		}
		return strings.TrimSpace(doc.Text()), nil
	}
	return "", nil
}

func collectText(h partHeader, body io.Reader) (plain, html string, err error) {
	mediaType, params, err := mime.ParseMediaType(h.contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, partErr := mr.NextPart()
			if partErr == io.EOF {
				break
			}
			if partErr != nil {
				return plain, html, fmt.Errorf("read mime part: %w", partErr)
			}

			p, ht, nestedErr := collectText(partHeader{
				contentType: part.Header.Get("Content-Type"),
				encoding:    part.Header.Get("Content-Transfer-Encoding"),
			}, part)
			if nestedErr != nil {
				return plain, html, nestedErr
			}
			if plain == "" {
				plain = p
			}
			if html == "" {
				html = ht
			}
		}
		return plain, html, nil
	}

	data, err := io.ReadAll(decodeCharset(params["charset"], decodeTransfer(h.encoding, body)))
	if err != nil {
		return "", "", fmt.Errorf("read body: %w", err)
	}

	switch mediaType {
	case "text/plain":
		return string(data), "", nil
	case "text/html":
		return "", string(data), nil
	}
	return "", "", nil
}

// decodeTransfer undoes Content-Transfer-Encoding. multipart.Reader already
// decodes quoted-printable parts and drops the header.
func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, newlineStripper{r})
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	}
	return r
}

// decodeCharset converts a non-UTF-8 body to UTF-8. Unknown charsets are
// passed through unchanged.
func decodeCharset(charset string, r io.Reader) io.Reader {
	cr, err := charsetReader(charset, r)
	if err != nil {
		return r
	}
	return cr
}

// charsetReader has the signature mime.WordDecoder expects.
func charsetReader(charset string, r io.Reader) (io.Reader, error) {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(r), nil
}

// newlineStripper drops CR and LF so base64 line breaks do not break decoding.
type newlineStripper struct{ r io.Reader }

func (n newlineStripper) Read(p []byte) (int, error) {
	buf := make([]byte, len(p))
	for {
		m, err := n.r.Read(buf)
		cleaned := bytes.Map(func(r rune) rune {
			if r == '\r' || r == '\n' {
				return -1
			}
			return r
		}, buf[:m])
		copy(p, cleaned)
		if len(cleaned) > 0 || err != nil {
			return len(cleaned), err
		}
	}
}
