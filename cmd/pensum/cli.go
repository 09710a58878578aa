package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pensum-app/pensum/internal/card"
	"github.com/pensum-app/pensum/internal/errors"
	"github.com/pensum-app/pensum/internal/mcp"
	"github.com/pensum-app/pensum/internal/ops"
	"github.com/pensum-app/pensum/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(a *app) *cli.App {
	cliApp := &cli.App{
		Name:    "pensum",
		Usage:   "Spaced-repetition exam trainer",
		Version: Version,
		Commands: []*cli.Command{
			topicsCmd(a),
			importCmd(a),
			nextCmd(a),
			gradeCmd(a),
			notesCmd(a),
			statsCmd(a),
			reviewCmd(a),
			serveCmd(a),
			mcpCmd(a),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	cliApp.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return cliApp
}

// sessionFlags are shared by every command that addresses a session.
func sessionFlags(extra ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{Name: "user", Aliases: []string{"u"}, EnvVars: []string{"PENSUM_USER"}, Usage: "Learner id"},
		&cli.StringFlag{Name: "topic", Aliases: []string{"t"}, Usage: "Topic id"},
	}, extra...)
}

func sessionInput(c *cli.Context) ops.SessionInput {
	return ops.SessionInput{UserID: c.String("user"), TopicID: c.String("topic")}
}

// topicsCmd creates the topics command.
func topicsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "topics",
		Usage: "List imported topics",
		Action: func(c *cli.Context) error {
			output, err := ops.ListTopics(c.Context, a.store)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// importCmd creates the import command.
func importCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a question bank from a JSON file",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("path argument is required"))
			}

			output, err := ops.Import(c.Context, a.store, a.cfg, ops.ImportInput{Path: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			if err := outputJSON(c.App.Writer, output); err != nil {
				return err
			}
			if len(output.Errors) > 0 {
				return cli.Exit(fmt.Sprintf("[%s] %d problem(s) in question bank, nothing imported",
					errors.ErrInvalidRequest, len(output.Errors)), 1)
			}
			return nil
		},
	}
}

// nextCmd creates the next command.
func nextCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "next",
		Usage: "Show the next card of a session",
		Flags: sessionFlags(),
		Action: func(c *cli.Context) error {
			output, err := ops.NextCard(c.Context, a.registry, sessionInput(c))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// gradeCmd creates the grade command.
func gradeCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "grade",
		Usage:     "Grade a card (again|hard|good|easy or 1-4)",
		ArgsUsage: "<rating>",
		Flags: sessionFlags(
			&cli.StringFlag{Name: "question", Aliases: []string{"q"}, Usage: "Question id (defaults to the next card)"},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("rating argument is required"))
			}

			output, err := ops.GradeCard(c.Context, a.registry, ops.GradeInput{
				SessionInput: sessionInput(c),
				QuestionID:   c.String("question"),
				Rating:       c.Args().First(),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// notesCmd creates the notes command.
func notesCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "notes",
		Usage:     "Set markdown notes on a card (text argument or stdin)",
		ArgsUsage: "[text]",
		Flags: sessionFlags(
			&cli.StringFlag{Name: "question", Aliases: []string{"q"}, Usage: "Question id"},
		),
		Action: func(c *cli.Context) error {
			var notes string
			if c.NArg() > 0 {
				notes = strings.Join(c.Args().Slice(), " ")
			} else if stdinHasData() {
				text, err := readAll(c.App.Reader)
				if err != nil {
					return outputError(errors.NewInvalidRequest("failed to read stdin: " + err.Error()))
				}
				notes = text
			}

			output, err := ops.UpdateNotes(c.Context, a.registry, ops.NotesInput{
				SessionInput: sessionInput(c),
				QuestionID:   c.String("question"),
				Notes:        notes,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show due counts for a topic",
		Flags: sessionFlags(),
		Action: func(c *cli.Context) error {
			output, err := ops.SessionStats(c.Context, a.registry.Engine(), sessionInput(c))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// reviewCmd creates the review command: an interactive loop over a session.
func reviewCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "review",
		Usage: "Review a topic interactively",
		Flags: sessionFlags(),
		Action: func(c *cli.Context) error {
			input := sessionInput(c)
			output, err := ops.LoadSession(c.Context, a.registry, input)
			if err != nil {
				return outputError(err)
			}
			return review(c, a, input, output)
		},
	}
}

func review(c *cli.Context, a *app, input ops.SessionInput, output *ops.SessionOutput) error {
	w := c.App.Writer
	scanner := bufio.NewScanner(c.App.Reader)

	for !output.Done {
		printCard(w, output)
		fmt.Fprint(w, "Rate [1] again [2] hard [3] good [4] easy, [q] quit: ")
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return scanner.Err()
		}
		answer := strings.TrimSpace(scanner.Text())
		if answer == "q" {
			return nil
		}

		graded, err := ops.GradeCard(c.Context, a.registry, ops.GradeInput{
			SessionInput: input,
			QuestionID:   output.Next.QuestionID,
			Rating:       answer,
		})
		if errors.Is(err, errors.ErrInvalidRequest) {
			pErr, _ := errors.As(err)
			fmt.Fprintf(w, "%s\n\n", pErr.Message)
			continue
		}
		if err != nil {
			return outputError(err)
		}

		fmt.Fprintf(w, "Answer: %s\n\n", answerText(output.Next.Question))
		output = &graded.SessionOutput
	}

	fmt.Fprintln(w, "Session complete.")
	return nil
}

// printCard writes the next card of output as plain text.
func printCard(w io.Writer, output *ops.SessionOutput) {
	v := output.Next
	q := v.Question
	fmt.Fprintf(w, "%d new, %d review left\n", output.New, output.Review)
	fmt.Fprintf(w, "[%s] (%s) %s\n", q.Code, v.State, q.Text)
	if q.Context != nil {
		fmt.Fprintln(w, *q.Context)
	}
	if q.Content != nil {
		fmt.Fprintln(w, *q.Content)
	}
	if q.OptionsTitle != nil {
		fmt.Fprintln(w, *q.OptionsTitle)
	}
	for i, opt := range q.Options {
		side := ""
		if opt.Side != nil {
			side = " (" + *opt.Side + ")"
		}
		fmt.Fprintf(w, "  %c) %s%s\n", 'a'+rune(i%26), opt.Text, side)
	}
	if v.Notes != nil && *v.Notes != "" {
		fmt.Fprintf(w, "Notes: %s\n", *v.Notes)
	}
}

// answerText summarizes the correct answer of q for display after grading.
func answerText(q card.Question) string {
	switch q.Type {
	case card.Order:
		ordered := make([]card.Option, 0, len(q.Options))
		for _, opt := range q.Options {
			if opt.CorrectOrderIndex != nil {
				ordered = append(ordered, opt)
			}
		}
		slices.SortFunc(ordered, func(x, y card.Option) int {
			return *x.CorrectOrderIndex - *y.CorrectOrderIndex
		})
		texts := make([]string, len(ordered))
		for i, opt := range ordered {
			texts[i] = opt.Text
		}
		return strings.Join(texts, " > ")

	case card.Match:
		byID := make(map[string]string, len(q.Options))
		for _, opt := range q.Options {
			byID[opt.ID] = opt.Text
		}
		var pairs []string
		for _, opt := range q.Options {
			if opt.Side == nil || *opt.Side != "left" || opt.CorrectMatchID == nil {
				continue
			}
			pairs = append(pairs, opt.Text+" = "+byID[*opt.CorrectMatchID])
		}
		return strings.Join(pairs, "; ")

	default:
		var correct []string
		for _, opt := range q.Options {
			if opt.IsCorrect != nil && *opt.IsCorrect {
				correct = append(correct, opt.Text)
			}
		}
		return strings.Join(correct, ", ")
	}
}

// serveCmd creates the serve command.
func serveCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (overrides http_addr)"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(a.store, a.registry, a.cfg, Version, a.logger)
			if addr := c.String("addr"); addr != "" {
				srv.Addr = addr
			}
			return web.Run(srv, a.logger)
		},
	}
}

// mcpCmd creates the mcp command. Piping into pensum without a command does
// the same.
func mcpCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			return mcp.Run(a.store, a.registry, a.cfg, Version)
		},
	}
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if pErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", pErr.Code, pErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readAll reads all content from r.
func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
