package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/chattersphere/chattersphere/internal/bot"
	"github.com/spf13/cobra"
)

var trainingDataFile string

// trainingDataCmd groups the canned-response table commands.
var trainingDataCmd = &cobra.Command{
	Use:   "training-data",
	Short: "Work with the bot's canned-response table",
	Long: `Inspect, validate, and export the per-room trigger/response table the bot
answers from. Without --file the bundled defaults are used, which is also
what a server with no TRAINING_DATA_PATH runs with.`,
}

var trainingDataListCmd = &cobra.Command{
	Use:   "list [room]",
	Short: "List canned trigger/response pairs",
	Long: `List the canned pairs for one room, or a per-room summary when no room is
given. Room names are case-sensitive.

Examples:
  spherectl training-data list
  spherectl training-data list "Tech Talk"
  spherectl training-data list --file ./training.json Gaming`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTrainingDataList,
}

var trainingDataValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a training data file",
	Long: `Check that a training data file parses, has at least one room, and that
every pair carries a non-empty question and response. The server refuses to
hot-reload a file that fails these checks, so validate before deploying.

Example:
  spherectl training-data validate --file ./training.json`,
	RunE: runTrainingDataValidate,
}

var trainingDataExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the effective table as JSON",
	Long: `Write the effective trigger/response table to stdout in the same JSON shape
the server loads, suitable as a starting point for a custom table.

Example:
  spherectl training-data export > training.json`,
	RunE: runTrainingDataExport,
}

func init() {
	trainingDataCmd.PersistentFlags().StringVarP(&trainingDataFile, "file", "f", "",
		"training data file (defaults to the bundled table)")

	trainingDataCmd.AddCommand(trainingDataListCmd)
	trainingDataCmd.AddCommand(trainingDataValidateCmd)
	trainingDataCmd.AddCommand(trainingDataExportCmd)
	rootCmd.AddCommand(trainingDataCmd)
}

func loadTable() (*bot.Table, error) {
	table, err := bot.NewTable(trainingDataFile)
	if err != nil {
		return nil, fmt.Errorf("loading training data: %w", err)
	}
	return table, nil
}

func runTrainingDataList(cmd *cobra.Command, args []string) error {
	table, err := loadTable()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		room := args[0]
		pairs := table.Pairs(room)
		if len(pairs) == 0 {
			return fmt.Errorf("room %q has no canned pairs", room)
		}
		for _, pair := range pairs {
			fmt.Printf("Q: %s\nA: %s\n\n", pair.Question, pair.Response)
		}
		return nil
	}

	rooms := table.Rooms()
	sort.Strings(rooms)
	for _, room := range rooms {
		fmt.Printf("%-12s %d pairs\n", room, len(table.Pairs(room)))
	}
	return nil
}

func runTrainingDataValidate(cmd *cobra.Command, args []string) error {
	if trainingDataFile == "" {
		return fmt.Errorf("--file is required for validate")
	}

	raw, err := os.ReadFile(trainingDataFile)
	if err != nil {
		return err
	}

	var doc struct {
		TrainingQuestions map[string][]bot.Pair `json:"trainingQuestions"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("❌ not valid JSON: %w", err)
	}
	if len(doc.TrainingQuestions) == 0 {
		return fmt.Errorf("❌ no rooms under trainingQuestions")
	}

	var problems []string
	for room, pairs := range doc.TrainingQuestions {
		if len(pairs) == 0 {
			problems = append(problems, fmt.Sprintf("room %q has no pairs", room))
		}
		for i, pair := range pairs {
			if strings.TrimSpace(pair.Question) == "" {
				problems = append(problems, fmt.Sprintf("room %q pair %d has an empty question", room, i))
			}
			if strings.TrimSpace(pair.Response) == "" {
				problems = append(problems, fmt.Sprintf("room %q pair %d has an empty response", room, i))
			}
		}
	}
	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintln(os.Stderr, "❌", p)
		}
		return fmt.Errorf("%d problem(s) found", len(problems))
	}

	fmt.Printf("✅ %s is valid (%d rooms)\n", trainingDataFile, len(doc.TrainingQuestions))
	return nil
}

func runTrainingDataExport(cmd *cobra.Command, args []string) error {
	table, err := loadTable()
	if err != nil {
		return err
	}

	doc := struct {
		TrainingQuestions map[string][]bot.Pair `json:"trainingQuestions"`
	}{TrainingQuestions: make(map[string][]bot.Pair)}

	for _, room := range table.Rooms() {
		doc.TrainingQuestions[room] = table.Pairs(room)
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
