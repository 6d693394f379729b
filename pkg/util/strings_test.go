package util

import (
    "reflect"
    "testing"
)

func TestParseBoolFlag(t *testing.T) {
    cases := map[string]struct {
        value bool
        ok    bool
    }{
        "true": {true, true}, "1": {true, true}, "YES": {true, true}, " on ": {true, true},
        "false": {false, true}, "0": {false, true}, "No": {false, true}, "off": {false, true},
        "": {false, false}, "maybe": {false, false}, "2": {false, false},
    }
    for in, want := range cases {
        v, ok := ParseBoolFlag(in)
        if v != want.value || ok != want.ok {
            t.Fatalf("ParseBoolFlag(%q) = %v, %v", in, v, ok)
        }
    }
}

func TestParsePositiveInt(t *testing.T) {
    if v, ok := ParsePositiveInt("25"); !ok || v != 25 {
        t.Fatalf("unexpected %d %v", v, ok)
    }
    for _, in := range []string{"0", "-5", "abc", ""} {
        if _, ok := ParsePositiveInt(in); ok {
            t.Fatalf("expected %q to be rejected", in)
        }
    }
}

func TestSplitCSV(t *testing.T) {
    got := SplitCSV(" kafka-1:9092, ,kafka-2:9092,")
    want := []string{"kafka-1:9092", "kafka-2:9092"}
    if !reflect.DeepEqual(got, want) {
        t.Fatalf("got %v", got)
    }
    if SplitCSV("") != nil {
        t.Fatalf("expected nil")
    }
}
