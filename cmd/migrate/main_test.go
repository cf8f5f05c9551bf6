package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeMigrator struct {
	version int64
	downs   []int
	ups     int
	closed  bool
	upErr   error
}

func (f *fakeMigrator) Up(ctx context.Context) error {
	if f.upErr != nil {
		return f.upErr
	}
	f.ups++
	f.version = 2
	return nil
}

func (f *fakeMigrator) Down(ctx context.Context, steps int) error {
	f.downs = append(f.downs, steps)
	f.version -= int64(steps)
	return nil
}

func (f *fakeMigrator) Version(ctx context.Context) (int64, error) { return f.version, nil }

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

func withMigrator(t *testing.T, m *fakeMigrator) {
	t.Helper()
	orig := openMigratorFunc
	openMigratorFunc = func(string) (migrator, error) { return m, nil }
	t.Cleanup(func() { openMigratorFunc = orig })
}

func TestRunUpAndDown(t *testing.T) {
	m := &fakeMigrator{}
	withMigrator(t, m)

	out := &bytes.Buffer{}
	if err := run(context.Background(), []string{"up"}, "postgres://db", out); err != nil {
		t.Fatalf("up: %v", err)
	}
	if m.ups != 1 || !strings.Contains(out.String(), "current version: 2") {
		t.Fatalf("unexpected up result %q", out.String())
	}

	out.Reset()
	if err := run(context.Background(), []string{"down", "2"}, "postgres://db", out); err != nil {
		t.Fatalf("down: %v", err)
	}
	if len(m.downs) != 1 || m.downs[0] != 2 || !strings.Contains(out.String(), "no migrations applied") {
		t.Fatalf("unexpected down result %v %q", m.downs, out.String())
	}
	if !m.closed {
		t.Fatal("migrator not closed")
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	withMigrator(t, &fakeMigrator{})
	cases := map[string]struct {
		args []string
		dsn  string
	}{
		"no command":   {nil, "postgres://db"},
		"no dsn":       {[]string{"up"}, ""},
		"bad steps":    {[]string{"down", "zero"}, "postgres://db"},
		"unknown verb": {[]string{"redo"}, "postgres://db"},
	}
	for name, tc := range cases {
		if err := run(context.Background(), tc.args, tc.dsn, &bytes.Buffer{}); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestRunWrapsMigrationError(t *testing.T) {
	boom := errors.New("syntax error")
	withMigrator(t, &fakeMigrator{upErr: boom})
	err := run(context.Background(), []string{"up"}, "postgres://db", &bytes.Buffer{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
