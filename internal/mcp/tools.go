package mcp

import "github.com/mark3labs/mcp-go/mcp"

var userIDParam = mcp.WithString("user_id",
	mcp.Required(),
	mcp.Description("Learner identity. Sessions and daily budgets are per user."),
)

var topicIDParam = mcp.WithString("topic_id",
	mcp.Required(),
	mcp.Description("Topic to study, as returned by topic_list."),
)

var topicListToolDef = mcp.NewTool("topic_list",
	mcp.WithDescription("List all topics ordered by name."),
)

var topicImportToolDef = mcp.NewTool("topic_import",
	mcp.WithDescription("Import a question-bank JSON file as a new topic. "+
		"The file must sit directly in ~/.pensum/imports or an allowed_paths directory. "+
		"Validation problems are reported per question and nothing is stored."),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Path to the .json question bank."),
	),
)

var sessionLoadToolDef = mcp.NewTool("session_load",
	mcp.WithDescription("Start or restart a study session: loads due review cards and today's new cards "+
		"and returns the stats and the first card to show."),
	userIDParam,
	topicIDParam,
)

var sessionNextToolDef = mcp.NewTool("session_next",
	mcp.WithDescription("Return the card to show next. Opens the session if needed. done=true when nothing is left."),
	userIDParam,
	topicIDParam,
)

var sessionGradeToolDef = mcp.NewTool("session_grade",
	mcp.WithDescription("Grade a card and return the updated session."),
	userIDParam,
	topicIDParam,
	mcp.WithString("rating",
		mcp.Required(),
		mcp.Description("again, hard, good or easy (or 1-4)."),
	),
	mcp.WithString("question_id",
		mcp.Description("Question of the card to grade. Defaults to the card session_next returns."),
	),
)

var sessionNotesToolDef = mcp.NewTool("session_notes",
	mcp.WithDescription("Set markdown notes on a card in the session. Only cards graded at least once can hold notes."),
	userIDParam,
	topicIDParam,
	mcp.WithString("question_id",
		mcp.Required(),
		mcp.Description("Question of the card."),
	),
	mcp.WithString("notes",
		mcp.Required(),
		mcp.Description("Markdown text. An empty string clears the notes."),
	),
)

var sessionStatsToolDef = mcp.NewTool("session_stats",
	mcp.WithDescription("Count the due work in a topic without changing the session."),
	userIDParam,
	topicIDParam,
)
