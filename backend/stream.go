package backend

import (
	"bufio"
	"io"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"nutribot/model"
)

// UnitStream yields decoded text one unit (rune) at a time.
// Next returns io.EOF once the body is exhausted.
type UnitStream interface {
	Next() (string, error)
	Close() error
}

// unitStream decodes the body with a stateful UTF-8 decoder, so a rune
// split across two network reads is reassembled instead of corrupted.
// Ill-formed bytes are replaced with U+FFFD.
type unitStream struct {
	body      io.ReadCloser
	reader    *bufio.Reader
	closeOnce sync.Once
	closeErr  error
}

func newUnitStream(body io.ReadCloser) *unitStream {
	decoded := transform.NewReader(body, unicode.UTF8.NewDecoder())
	return &unitStream{
		body:   body,
		reader: bufio.NewReader(decoded),
	}
}

func (s *unitStream) Next() (string, error) {
	r, _, err := s.reader.ReadRune()
	if err == io.EOF {
		return "", io.EOF
	}
	if err != nil {
		return "", &model.TransportError{Op: "chat", Err: errors.Wrap(err, "read response")}
	}
	return string(r), nil
}

// Close releases the connection. It is safe to call more than once.
func (s *unitStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
