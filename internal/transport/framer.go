package transport

import (
	"bufio"
	"bytes"
	"io"
)

// Delimiter ends every line on the link.
const Delimiter byte = '\r'

// DefaultMaxLineLength bounds a single inbound line. Feedback tokens are a
// few bytes; anything longer is line noise.
const DefaultMaxLineLength = 256

// newLineScanner returns a scanner that yields delimiter-terminated lines
// without the delimiter. Lines longer than maxLen are discarded up to the
// next delimiter and reported through onOverflow. A trailing partial line at
// EOF is discarded.
func newLineScanner(r io.Reader, maxLen int, onOverflow func()) *bufio.Scanner {
	if maxLen <= 0 {
		maxLen = DefaultMaxLineLength
	}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 512), maxLen+1)
	s.Split(splitDelimited(Delimiter, maxLen, onOverflow))
	return s
}

func splitDelimited(delim byte, maxLen int, onOverflow func()) bufio.SplitFunc {
	discarding := false

	return func(data []byte, atEOF bool) (int, []byte, error) {
		if i := bytes.IndexByte(data, delim); i >= 0 {
			if discarding || i > maxLen {
				if !discarding && onOverflow != nil {
					onOverflow()
				}
				discarding = false
				return i + 1, nil, nil
			}
			return i + 1, data[:i], nil
		}

		if len(data) > maxLen {
			if !discarding && onOverflow != nil {
				onOverflow()
			}
			discarding = true
			return len(data), nil, nil
		}

		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
}
