package util

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDReusesValidUpstream(t *testing.T) {
	up := "3F2504E0-4F89-11D3-9A0C-0305E82C3301"
	if got := RequestID(up); got != "3f2504e0-4f89-11d3-9a0c-0305e82c3301" {
		t.Errorf("RequestID(%q) = %q", up, got)
	}
	for _, bad := range []string{"", "not-a-uuid", "x\nforged log line"} {
		got := RequestID(bad)
		if _, err := uuid.Parse(got); err != nil || got == bad {
			t.Errorf("RequestID(%q) = %q, want fresh uuid", bad, got)
		}
	}
}

func TestRequestIDContext(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("empty context id = %q", got)
	}
	ctx := WithRequestID(context.Background(), "abc")
	if got := GetRequestID(ctx); got != "abc" {
		t.Errorf("GetRequestID = %q", got)
	}
}
