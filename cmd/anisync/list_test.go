package main

import (
	"testing"

	"github.com/spf13/pflag"
)

func setFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	f := pflag.NewFlagSet("set", pflag.ContinueOnError)
	f.String("status", "", "")
	f.Float64("score", 0, "")
	f.Int("progress", 0, "")
	f.Bool("clear-score", false, "")
	if err := f.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return f
}

func TestSetRequestFromFlags_OnlyChangedFields(t *testing.T) {
	req, err := setRequestFromFlags("21", setFlags(t, "--status", "current", "--progress", "0"))
	if err != nil {
		t.Fatalf("setRequestFromFlags: %v", err)
	}
	if req.MediaID != 21 || req.Status != "CURRENT" {
		t.Fatalf("req: %+v", req)
	}
	if req.Progress == nil || *req.Progress != 0 {
		t.Fatalf("progress 0 must be sent explicitly: %+v", req.Progress)
	}
	if req.Score != nil || req.ClearScore {
		t.Fatalf("score untouched: %+v", req)
	}
}

func TestSetRequestFromFlags_Rejects(t *testing.T) {
	if _, err := setRequestFromFlags("abc", setFlags(t)); err == nil {
		t.Fatalf("expected invalid id error")
	}
	if _, err := setRequestFromFlags("0", setFlags(t)); err == nil {
		t.Fatalf("expected invalid id error for 0")
	}
	if _, err := setRequestFromFlags("21", setFlags(t, "--score", "7", "--clear-score")); err == nil {
		t.Fatalf("expected exclusive flags error")
	}
}
