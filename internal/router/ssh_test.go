package router

import (
	"reflect"
	"testing"
)

func TestParseQueueLines(t *testing.T) {
	out := "mon-a|10.0.0.14/32|1024/2048\r\n" +
		"\n" +
		"  mon-b | 10.0.0.15/32 | 0/0  \n" +
		"broken-row-without-pipes\n" +
		"only|two\n" +
		"mon-c|10.0.0.16/32|\n"

	got := ParseQueueLines(out)
	want := []Queue{
		{Name: "mon-a", Target: "10.0.0.14/32", Rate: "1024/2048"},
		{Name: "mon-b", Target: "10.0.0.15/32", Rate: "0/0"},
		{Name: "mon-c", Target: "10.0.0.16/32", Rate: ""},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseQueueLines = %+v, want %+v", got, want)
	}
}

func TestParseQueueLinesEmpty(t *testing.T) {
	if got := ParseQueueLines(""); got != nil {
		t.Fatalf("expected nil for empty output, got %+v", got)
	}
	if got := ParseQueueLines("\n\n  \n"); got != nil {
		t.Fatalf("expected nil for blank output, got %+v", got)
	}
}
