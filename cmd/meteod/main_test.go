package main

import (
	"testing"
)

func TestBuildRootHasAllCommands(t *testing.T) {
	root := buildRoot()
	want := []string{"serve", "status", "pause", "resume", "collect", "settings", "locations", "live", "history"}
	have := map[string]bool{}
	for _, cmd := range root.Commands() {
		have[cmd.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Fatalf("missing command %q", name)
		}
	}
}

func TestSettingsSubcommands(t *testing.T) {
	root := buildRoot()
	settings, _, err := root.Find([]string{"settings", "set"})
	if err != nil || settings.Name() != "set" {
		t.Fatalf("settings set not found: %v", err)
	}
	if settings.Flag("interval-minutes") == nil {
		t.Fatal("settings set must expose --interval-minutes")
	}
}

func TestLocationsSubcommands(t *testing.T) {
	root := buildRoot()
	for _, sub := range []string{"list", "add", "rm"} {
		cmd, _, err := root.Find([]string{"locations", sub})
		if err != nil || cmd.Name() != sub {
			t.Fatalf("locations %s not found: %v", sub, err)
		}
	}
}

func TestServeAcceptsConfigArg(t *testing.T) {
	root := buildRoot()
	serve, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatalf("serve not found: %v", err)
	}
	if serve.Flag("daemonize") == nil || serve.Flag("pidfile") == nil {
		t.Fatal("serve must expose daemonize flags")
	}
}
