package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/config"
	"github.com/pensum-app/pensum/internal/db"
	"github.com/pensum-app/pensum/internal/ops"
	"github.com/pensum-app/pensum/internal/scheduler"
	"github.com/pensum-app/pensum/internal/session"
)

const testBank = `{
  "topic": "Geography",
  "questions": [
    {
      "code": "G-1",
      "text": "Capital of France?",
      "type": "single",
      "options": [
        {"text": "Paris", "is_correct": true},
        {"text": "Lyon", "is_correct": false}
      ]
    },
    {
      "code": "G-2",
      "text": "Order by size, largest first",
      "type": "order",
      "options": [
        {"text": "Russia", "correct_order_index": 0},
        {"text": "Canada", "correct_order_index": 1},
        {"text": "China", "correct_order_index": 2}
      ]
    }
  ]
}`

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

// setupTestApp creates an app over a temporary database.
func setupTestApp(t *testing.T) (*app, *testClock) {
	t.Helper()
	conn, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true
	st := db.NewStore(conn)
	clock := &testClock{now: time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine := session.NewEngine(st, scheduler.New(scheduler.WithoutFuzz()), session.LimitsFromConfig(cfg),
		session.WithClock(clock.Now),
		session.WithLogger(logger),
	)
	return &app{cfg: cfg, store: st, registry: session.NewRegistry(engine), logger: logger}, clock
}

// runCLI runs the CLI with args and returns what it wrote.
func runCLI(t *testing.T, a *app, stdin string, args ...string) (string, error) {
	t.Helper()
	cliApp := newCLIApp(a)
	var out bytes.Buffer
	cliApp.Writer = &out
	cliApp.ErrWriter = io.Discard
	cliApp.Reader = strings.NewReader(stdin)
	err := cliApp.Run(append([]string{"pensum"}, args...))
	return out.String(), err
}

// importTestBank writes the test bank and imports it, returning the topic id.
func importTestBank(t *testing.T, a *app) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "geo.json")
	if err := os.WriteFile(path, []byte(testBank), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	out, err := runCLI(t, a, "", "import", path)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	var result ops.ImportOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("failed to parse import output: %v\n%s", err, out)
	}
	if result.Imported != 2 || result.TopicID == "" {
		t.Fatalf("unexpected import output: %+v", result)
	}
	return result.TopicID
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		info  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"bogus", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := newLogger(tt.level, io.Discard)
			ctx := context.Background()
			if got := logger.Enabled(ctx, slog.LevelDebug); got != tt.debug {
				t.Errorf("debug enabled = %v, want %v", got, tt.debug)
			}
			if got := logger.Enabled(ctx, slog.LevelInfo); got != tt.info {
				t.Errorf("info enabled = %v, want %v", got, tt.info)
			}
		})
	}
}

func TestAnswerText(t *testing.T) {
	yes, no := true, false
	idx := func(i int) *int { return &i }
	str := func(s string) *string { return &s }

	tests := []struct {
		name string
		q    card.Question
		want string
	}{
		{
			name: "single",
			q: card.Question{Type: card.SingleChoice, Options: []card.Option{
				{Text: "Paris", IsCorrect: &yes},
				{Text: "Lyon", IsCorrect: &no},
			}},
			want: "Paris",
		},
		{
			name: "multiple",
			q: card.Question{Type: card.MultipleChoice, Options: []card.Option{
				{Text: "2", IsCorrect: &yes},
				{Text: "4", IsCorrect: &no},
				{Text: "3", IsCorrect: &yes},
			}},
			want: "2, 3",
		},
		{
			name: "order",
			q: card.Question{Type: card.Order, Options: []card.Option{
				{Text: "third", CorrectOrderIndex: idx(2)},
				{Text: "first", CorrectOrderIndex: idx(0)},
				{Text: "second", CorrectOrderIndex: idx(1)},
			}},
			want: "first > second > third",
		},
		{
			name: "match",
			q: card.Question{Type: card.Match, Options: []card.Option{
				{ID: "l1", Text: "H2O", Side: str("left"), CorrectMatchID: str("r2")},
				{ID: "l2", Text: "NaCl", Side: str("left"), CorrectMatchID: str("r1")},
				{ID: "r1", Text: "salt", Side: str("right")},
				{ID: "r2", Text: "water", Side: str("right")},
			}},
			want: "H2O = water; NaCl = salt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := answerText(tt.q); got != tt.want {
				t.Errorf("answerText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCLI_TopicsEmpty(t *testing.T) {
	a, _ := setupTestApp(t)

	out, err := runCLI(t, a, "", "topics")
	if err != nil {
		t.Fatalf("topics failed: %v", err)
	}
	var result ops.ListTopicsOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if result.Topics == nil || len(result.Topics) != 0 {
		t.Errorf("expected empty topic list, got %+v", result.Topics)
	}
}

func TestCLI_Import(t *testing.T) {
	a, _ := setupTestApp(t)
	importTestBank(t, a)

	out, err := runCLI(t, a, "", "topics")
	if err != nil {
		t.Fatalf("topics failed: %v", err)
	}
	if !strings.Contains(out, `"Geography"`) {
		t.Errorf("expected imported topic in output, got: %s", out)
	}
}

func TestCLI_ImportErrors(t *testing.T) {
	a, _ := setupTestApp(t)
	dir := t.TempDir()

	dup := filepath.Join(dir, "dup.json")
	if err := os.WriteFile(dup, []byte(testBank), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, a, "", "import", dup); err != nil {
		t.Fatalf("first import failed: %v", err)
	}

	invalid := filepath.Join(dir, "invalid.json")
	if err := os.WriteFile(invalid, []byte(`{"topic": "Empty", "questions": []}`), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing path", []string{"import"}, "[INVALID_REQUEST]"},
		{"duplicate topic", []string{"import", dup}, "[CONFLICT]"},
		{"validation problems", []string{"import", invalid}, "nothing imported"},
		{"missing file", []string{"import", filepath.Join(dir, "nope.json")}, "[NOT_FOUND]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, a, "", tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestCLI_SessionCommands(t *testing.T) {
	a, _ := setupTestApp(t)
	topicID := importTestBank(t, a)

	out, err := runCLI(t, a, "", "next", "--user", "ann", "--topic", topicID)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}
	var next ops.SessionOutput
	if err := json.Unmarshal([]byte(out), &next); err != nil {
		t.Fatalf("failed to parse next output: %v", err)
	}
	if next.New != 2 || next.Next == nil || !next.Next.Virtual {
		t.Fatalf("unexpected next output: %+v", next)
	}

	out, err = runCLI(t, a, "", "grade", "--user", "ann", "--topic", topicID, "easy")
	if err != nil {
		t.Fatalf("grade failed: %v", err)
	}
	var graded ops.GradeOutput
	if err := json.Unmarshal([]byte(out), &graded); err != nil {
		t.Fatalf("failed to parse grade output: %v", err)
	}
	if graded.Graded != next.Next.QuestionID || graded.Rating != "easy" || graded.New != 1 {
		t.Errorf("unexpected grade output: %+v", graded)
	}

	out, err = runCLI(t, a, "", "stats", "-u", "ann", "-t", topicID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	var stats card.TopicStats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("failed to parse stats output: %v", err)
	}
	if stats.Total != 2 || stats.NewDue != 1 || stats.TotalDue != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestCLI_SessionErrors(t *testing.T) {
	a, _ := setupTestApp(t)
	topicID := importTestBank(t, a)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"next without user", []string{"next", "--topic", topicID}, "[UNAUTHENTICATED]"},
		{"next without topic", []string{"next", "--user", "ann"}, "[INVALID_REQUEST]"},
		{"grade without rating", []string{"grade", "--user", "ann", "--topic", topicID}, "[INVALID_REQUEST]"},
		{"grade bad rating", []string{"grade", "--user", "ann", "--topic", topicID, "perfect"}, "[INVALID_REQUEST]"},
		{"grade unknown question", []string{"grade", "--user", "ann", "--topic", topicID, "--question", "nope", "good"}, "[NOT_FOUND]"},
		{"notes without question", []string{"notes", "--user", "ann", "--topic", topicID, "text"}, "[INVALID_REQUEST]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, a, "", tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestCLI_Notes(t *testing.T) {
	a, clock := setupTestApp(t)
	topicID := importTestBank(t, a)

	out, err := runCLI(t, a, "", "next", "--user", "ann", "--topic", topicID)
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}
	var next ops.SessionOutput
	if err := json.Unmarshal([]byte(out), &next); err != nil {
		t.Fatalf("failed to parse next output: %v", err)
	}
	questionID := next.Next.QuestionID

	// Notes need a persisted card
	_, err = runCLI(t, a, "", "notes", "--user", "ann", "--topic", topicID, "--question", questionID, "too early")
	if err == nil || !strings.Contains(err.Error(), "[NOT_IMPLEMENTED]") {
		t.Fatalf("expected NOT_IMPLEMENTED for a virtual card, got: %v", err)
	}

	if _, err := runCLI(t, a, "", "grade", "--user", "ann", "--topic", topicID, "--question", questionID, "good"); err != nil {
		t.Fatalf("grade failed: %v", err)
	}

	// Bring the card back into the review queue
	clock.now = clock.now.Add(48 * time.Hour)
	if _, err := runCLI(t, a, "q\n", "review", "--user", "ann", "--topic", topicID); err != nil {
		t.Fatalf("review failed: %v", err)
	}

	out, err = runCLI(t, a, "", "notes", "--user", "ann", "--topic", topicID, "--question", questionID, "capital", "is", "**Paris**")
	if err != nil {
		t.Fatalf("notes failed: %v", err)
	}
	var view ops.CardView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("failed to parse notes output: %v", err)
	}
	if view.Notes == nil || *view.Notes != "capital is **Paris**" {
		t.Errorf("unexpected notes: %v", view.Notes)
	}
	if !strings.Contains(view.NotesHTML, "<strong>Paris</strong>") {
		t.Errorf("expected rendered notes, got %q", view.NotesHTML)
	}
}

func TestCLI_Review(t *testing.T) {
	a, _ := setupTestApp(t)
	topicID := importTestBank(t, a)

	out, err := runCLI(t, a, "perfect\n4\n4\n", "review", "--user", "ann", "--topic", topicID)
	if err != nil {
		t.Fatalf("review failed: %v", err)
	}

	if !strings.Contains(out, "2 new, 0 review left") {
		t.Errorf("expected queue summary, got:\n%s", out)
	}
	if got := strings.Count(out, "Answer: "); got != 2 {
		t.Errorf("expected 2 answers, got %d:\n%s", got, out)
	}
	if !strings.Contains(out, "Session complete.") {
		t.Errorf("expected completion message, got:\n%s", out)
	}
}

func TestCLI_ReviewQuit(t *testing.T) {
	a, _ := setupTestApp(t)
	topicID := importTestBank(t, a)

	out, err := runCLI(t, a, "q\n", "review", "--user", "ann", "--topic", topicID)
	if err != nil {
		t.Fatalf("review failed: %v", err)
	}
	if strings.Contains(out, "Answer: ") || strings.Contains(out, "Session complete.") {
		t.Errorf("expected to quit before grading, got:\n%s", out)
	}
}
