package transport

import (
	"strings"
	"testing"
	"testing/iotest"
)

func scanAll(input string, maxLen int) (lines []string, overflows int) {
	s := newLineScanner(strings.NewReader(input), maxLen, func() { overflows++ })
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	return lines, overflows
}

func TestLineScanner(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		maxLen    int
		want      []string
		overflows int
	}{
		{
			name:  "single token",
			input: "P1LEDON\r",
			want:  []string{"P1LEDON"},
		},
		{
			name:  "several tokens",
			input: "P1LEDON\rTTSTR=05:30\rBEEP\r",
			want:  []string{"P1LEDON", "TTSTR=05:30", "BEEP"},
		},
		{
			name:  "empty line kept",
			input: "\rSMON\r",
			want:  []string{"", "SMON"},
		},
		{
			name:  "trailing partial discarded",
			input: "SMON\rSMO",
			want:  []string{"SMON"},
		},
		{
			name:  "newline is not a delimiter",
			input: "SMON\r\nSMOF\r",
			want:  []string{"SMON", "\nSMOF"},
		},
		{
			name:      "over-long line dropped",
			input:     strings.Repeat("X", 20) + "\rBEEP\r",
			maxLen:    8,
			want:      []string{"BEEP"},
			overflows: 1,
		},
		{
			name:   "line at limit kept",
			input:  "12345678\r",
			maxLen: 8,
			want:   []string{"12345678"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, overflows := scanAll(tt.input, tt.maxLen)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("lines = %q, want %q", got, tt.want)
			}
			if overflows != tt.overflows {
				t.Errorf("overflows = %d, want %d", overflows, tt.overflows)
			}
		})
	}
}

func TestLineScannerSplitReads(t *testing.T) {
	input := "P2LEDDM\rRTSTR=00:10\r"
	overflows := 0
	s := newLineScanner(iotest.OneByteReader(strings.NewReader(input)), 0, func() { overflows++ })

	var got []string
	for s.Scan() {
		got = append(got, s.Text())
	}
	if len(got) != 2 || got[0] != "P2LEDDM" || got[1] != "RTSTR=00:10" {
		t.Errorf("lines = %q", got)
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}

func TestLineScannerLongNoiseBetweenTokens(t *testing.T) {
	input := "SMON\r" + strings.Repeat("~", 3000) + "\rSMOF\r"
	got, overflows := scanAll(input, 16)

	if len(got) != 2 || got[0] != "SMON" || got[1] != "SMOF" {
		t.Errorf("lines = %q", got)
	}
	if overflows != 1 {
		t.Errorf("overflows = %d, want 1", overflows)
	}
}
