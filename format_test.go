package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSize(tt.bytes))
	}
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", formatTime(time.Time{}))

	thisYear := time.Date(time.Now().Year(), 3, 5, 14, 30, 0, 0, time.Local)
	assert.Equal(t, "Mar  5 14:30", formatTime(thisYear))

	lastYear := time.Date(time.Now().Year()-1, 3, 5, 14, 30, 0, 0, time.Local)
	assert.Equal(t, "Mar  5  "+lastYear.Format("2006"), formatTime(lastYear))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"NAME", "SIZE"}, [][]string{
		{"data.csv", "1.0 KB"},
		{"a", "12 B"},
	})

	want := "NAME      SIZE  \n" +
		"data.csv  1.0 KB\n" +
		"a         12 B  \n"
	assert.Equal(t, want, buf.String())
}
