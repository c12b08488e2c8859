package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"focusflow/internal/config"
	"focusflow/internal/model"
)

const sampleICS = "BEGIN:VCALENDAR\r\n" +
	"BEGIN:VEVENT\r\nUID:plan\r\nDTSTART:20250115T090000Z\r\nDTEND:20250115T100000Z\r\nSUMMARY:Planning\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:review\r\nDTSTART:20250115T093000Z\r\nDTEND:20250115T103000Z\r\nSUMMARY:Review\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:off\r\nDTSTART;VALUE=DATE:20250115\r\nSUMMARY:Offsite\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nDTSTART:20250115T120000Z\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := New()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestParseCommand(t *testing.T) {
	path := writeFile(t, "team.ics", sampleICS)

	out, errOut, err := run(t, "parse", path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.Contains(out, `"summary": "Planning"`) || !strings.Contains(out, `"isAllDay": true`) {
		t.Fatalf("unexpected json output: %s", out)
	}
	if !strings.Contains(errOut, "missing SUMMARY") {
		t.Fatalf("expected warning on stderr, got %q", errOut)
	}

	out, _, err = run(t, "parse", path, "-o", "yaml")
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if !strings.Contains(out, "summary: Planning") {
		t.Fatalf("unexpected yaml output: %s", out)
	}

	if _, _, err := run(t, "parse", path, "-o", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestLayoutCommandICS(t *testing.T) {
	path := writeFile(t, "team.ics", sampleICS)

	out, _, err := run(t, "layout", path, "--date", "2025-01-15")
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two timed rows, got:\n%s", out)
	}
	if !strings.Contains(lines[1], "plan") || !strings.Contains(lines[2], "review") {
		t.Fatalf("unexpected rows:\n%s", out)
	}
	if strings.Contains(out, "Offsite") {
		t.Fatalf("all-day events must not be laid out:\n%s", out)
	}
}

func TestLayoutCommandJSONStrict(t *testing.T) {
	good := writeFile(t, "events.json", `[
		{"id":"a","start":"2025-01-15T09:00:00Z","end":"2025-01-15T10:00:00Z"},
		{"id":"b","start":"2025-01-15T09:30:00Z","end":"2025-01-15T10:30:00Z"}
	]`)
	out, _, err := run(t, "layout", good, "--strict")
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if !strings.Contains(out, "Wed 01-15") {
		t.Fatalf("expected the earliest event's day by default:\n%s", out)
	}

	bad := writeFile(t, "bad.json", `[{"id":"x","start":"2025-01-15T10:00:00Z","end":"2025-01-15T09:00:00Z"}]`)
	if _, _, err := run(t, "layout", bad, "--strict"); err == nil {
		t.Fatalf("expected strict mode to reject inverted event")
	}
	if _, _, err := run(t, "layout", bad); err != nil {
		t.Fatalf("lenient mode must place inverted event: %v", err)
	}
}

func TestLayoutCommandWeek(t *testing.T) {
	path := writeFile(t, "team.ics", sampleICS)
	out, _, err := run(t, "layout", path, "--week", "--date", "2025-01-17")
	if err != nil {
		t.Fatalf("layout week: %v", err)
	}
	if !strings.Contains(out, "Wed 01-15") {
		t.Fatalf("expected wednesday rows in week output:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := run(t, "version", "-o", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "dev") {
		t.Fatalf("expected dev version, got %q", out)
	}
}

func TestSubscriptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ICS = []config.ICSConfig{
		{URL: "https://example.com/team.ics", Name: "Team"},
		{Name: "no url"},
	}
	cfg.Google = &config.GoogleConfig{AccessToken: "tok", Calendars: []string{"primary"}}
	cfg.Normalize()

	subs := subscriptions(cfg)
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %+v", subs)
	}
	if subs[0].CalendarID != "Team" || subs[0].OwnerID != "default" || subs[0].Source != model.SourceICS {
		t.Fatalf("unexpected ics subscription: %+v", subs[0])
	}
	if subs[1].CalendarID != "google:primary" || subs[1].GoogleID != "primary" || subs[1].Source != model.SourceGoogle {
		t.Fatalf("unexpected google subscription: %+v", subs[1])
	}
}
