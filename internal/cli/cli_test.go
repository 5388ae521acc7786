package cli

import (
	"context"
	"errors"
	"flag"
	"io"
	"strings"
	"testing"
)

func testEnv(args ...string) *Env {
	return &Env{
		Args:   args,
		Getenv: func(string) string { return "" },
		Stdin:  strings.NewReader(""),
		Stdout: io.Discard,
		Stderr: io.Discard,
	}
}

func TestRunVersionFlag(t *testing.T) {
	err := Run(context.Background(), AppFunc(func(context.Context, *Env) error {
		t.Fatal("app should not run with -version")
		return nil
	}), testEnv("-version"))
	if !errors.Is(err, ErrExitVersion) {
		t.Errorf("got %v, want ErrExitVersion", err)
	}
}

func TestRunHelpFlagIsUnprintable(t *testing.T) {
	err := Run(context.Background(), AppFunc(func(context.Context, *Env) error {
		return nil
	}), testEnv("-h"))
	if !errors.Is(err, flag.ErrHelp) {
		t.Errorf("got %v, want flag.ErrHelp", err)
	}
	if isPrintableError(err) {
		t.Error("flag.ErrHelp should not be printable")
	}
}

func TestRunPassesRemainingArgs(t *testing.T) {
	var got []string
	err := Run(context.Background(), AppFunc(func(_ context.Context, env *Env) error {
		got = env.Args
		return nil
	}), testEnv("foo", "bar"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "foo" || got[1] != "bar" {
		t.Errorf("got %v, want [foo bar]", got)
	}
}
