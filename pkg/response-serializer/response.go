package serializer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// ResponseToBytes returns the HTTP/1.1 representation of a response with the given
// status, header and body. Content-Length is set from the body; transfer encodings of
// the original response do not apply to the stored copy.
func ResponseToBytes(statusCode int, header http.Header, body []byte) ([]byte, error) {
	res := &http.Response{
		StatusCode:    statusCode,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
	if res.Header == nil {
		res.Header = http.Header{}
	}
	res.Header.Del("Transfer-Encoding")
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, fmt.Errorf("could not write response: %w", err)
	}
	return buf.Bytes(), nil
}

// BytesToResponse reads a response written by ResponseToBytes.
// The body is fully read and returned along with status and header.
func BytesToResponse(b []byte) (int, http.Header, []byte, error) {
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("could not read stored response: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("could not read stored response body: %w", err)
	}
	return res.StatusCode, res.Header, body, nil
}
