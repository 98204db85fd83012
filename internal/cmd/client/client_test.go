package client

import (
	"testing"

	"github.com/spf13/cobra"
)

func testBase() string { return "http://127.0.0.1:0" }

func subcommandNames(cmd *cobra.Command) map[string]*cobra.Command {
	out := make(map[string]*cobra.Command)
	for _, c := range cmd.Commands() {
		out[c.Name()] = c
	}
	return out
}

func TestRequestCommandTree(t *testing.T) {
	cmd := NewRequestCommand(testBase)
	subs := subcommandNames(cmd)
	for _, name := range []string{"submit", "list", "delete"} {
		if _, ok := subs[name]; !ok {
			t.Fatalf("missing subcommand %q", name)
		}
	}
	if subs["submit"].Flags().Lookup("website") == nil {
		t.Fatal("submit should have a --website flag")
	}
	if err := subs["submit"].ValidateRequiredFlags(); err == nil {
		t.Fatal("submit should require --website")
	}
}

func TestAllocCommandTree(t *testing.T) {
	cmd := NewAllocCommand(testBase)
	subs := subcommandNames(cmd)
	for _, name := range []string{"process", "release", "claim", "complete", "pending", "stats"} {
		if _, ok := subs[name]; !ok {
			t.Fatalf("missing subcommand %q", name)
		}
	}
	if subs["claim"].Flags().Lookup("worker") == nil {
		t.Fatal("claim should have a --worker flag")
	}
	if subs["complete"].Flags().Lookup("outcome") == nil {
		t.Fatal("complete should have an --outcome flag")
	}
}

func TestConfigAndStatsCommandTrees(t *testing.T) {
	cfg := subcommandNames(NewConfigCommand(testBase))
	for _, name := range []string{"list", "set", "reset", "init"} {
		if _, ok := cfg[name]; !ok {
			t.Fatalf("missing config subcommand %q", name)
		}
	}
	st := subcommandNames(NewStatsCommand(testBase))
	for _, name := range []string{"daily", "websites", "rebuild"} {
		if _, ok := st[name]; !ok {
			t.Fatalf("missing stats subcommand %q", name)
		}
	}
	audit := subcommandNames(NewAuditCommand(testBase))
	if _, ok := audit["list"]; !ok {
		t.Fatal("missing audit subcommand list")
	}
}
