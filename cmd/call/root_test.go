package call

import (
	"reflect"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got, err := parseHeaders([]string{"trace=abc", "user=bob=admin"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := map[string]string{"trace": "abc", "user": "bob=admin"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if got, err := parseHeaders(nil); got != nil || err != nil {
		t.Errorf("empty input: got %v, %v", got, err)
	}

	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseHeaders([]string{bad}); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}
