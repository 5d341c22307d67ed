// Package main is the CLI entry point.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lexipoint/lexipoint/internal/profile"
	"github.com/lexipoint/lexipoint/internal/version"
	"github.com/lexipoint/lexipoint/store"
	"github.com/lexipoint/lexipoint/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "lexipoint",
	Short: "Knowledge point lifecycle engine",
	Long:  "Tracks recurring learner mistakes as knowledge points with spaced-repetition review scheduling",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return setup()
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if engineStore != nil {
			if err := engineStore.Close(); err != nil {
				slog.Error("failed to close store", "error", err)
			}
		}
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a graded mistake as a new knowledge point",
	RunE:  runAdd,
}

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List knowledge points due for review, weakest first",
	RunE:  runDue,
}

var showCmd = &cobra.Command{
	Use:   "show <uid>",
	Short: "Show one knowledge point with its original error and review history",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var recordCmd = &cobra.Command{
	Use:   "record <uid>",
	Short: "Record a review outcome for a knowledge point",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecord,
}

var editCmd = &cobra.Command{
	Use:   "edit <uid>",
	Short: "Edit the descriptive fields of a knowledge point",
	Args:  cobra.ExactArgs(1),
	RunE:  runEdit,
}

var searchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Search knowledge points by keyword",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate learning statistics",
	RunE:  runStats,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <uid>",
	Short: "Soft-delete a knowledge point",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <uid>",
	Short: "Restore a soft-deleted knowledge point",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

var purgeCmd = &cobra.Command{
	Use:   "purge <uid>",
	Short: "Permanently remove a soft-deleted knowledge point",
	Args:  cobra.ExactArgs(1),
	RunE:  runPurge,
}

var historyCmd = &cobra.Command{
	Use:   "history <uid>",
	Short: "Show the version history of a knowledge point",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var engineStore *store.Store

func init() {
	viper.SetEnvPrefix("lexipoint")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().String("mode", "demo", `mode of the engine, can be "prod", "dev" or "demo"`)
	rootCmd.PersistentFlags().String("data", ".", "data directory")
	rootCmd.PersistentFlags().String("driver", "file", `storage driver, can be "file", "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database source name (driver dependent)")
	rootCmd.PersistentFlags().Float64("review-penalty", 0, "mastery penalty on incorrect outcomes (0 keeps the default)")
	rootCmd.PersistentFlags().Duration("review-short-interval", 0, "shortest review interval (0 keeps the default)")
	rootCmd.PersistentFlags().Duration("review-max-interval", 0, "longest review interval (0 keeps the default)")

	for _, flag := range []string{"mode", "data", "driver", "dsn", "review-penalty", "review-short-interval", "review-max-interval"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	addCmd.Flags().String("key-point", "", "the rule or pattern the mistake demonstrates (required)")
	addCmd.Flags().String("sentence", "", "the exercise sentence (required)")
	addCmd.Flags().String("answer", "", "the learner's answer (required)")
	addCmd.Flags().String("correct", "", "the correct answer (required)")
	addCmd.Flags().String("explanation", "", "explanation of the rule")
	addCmd.Flags().Bool("acceptable", false, "the answer was acceptable, only improvable")
	addCmd.Flags().String("category-hint", "", "optional category hint from the grader")
	addCmd.Flags().StringSlice("tag", nil, "tag (can be repeated)")
	addCmd.MarkFlagRequired("key-point")
	addCmd.MarkFlagRequired("sentence")
	addCmd.MarkFlagRequired("answer")
	addCmd.MarkFlagRequired("correct")

	dueCmd.Flags().Int("limit", 20, "maximum number of points to list")

	recordCmd.Flags().String("sentence", "", "the review sentence (required)")
	recordCmd.Flags().String("answer", "", "the learner's answer")
	recordCmd.Flags().String("correct-answer", "", "the correct answer")
	recordCmd.Flags().Bool("correct", false, "the answer was correct")
	recordCmd.MarkFlagRequired("sentence")

	editCmd.Flags().String("key-point", "", "new key point")
	editCmd.Flags().String("explanation", "", "new explanation")
	editCmd.Flags().String("notes", "", "new custom notes")
	editCmd.Flags().StringSlice("tag", nil, "replacement tags (can be repeated)")

	deleteCmd.Flags().String("reason", "", "reason for the deletion")

	rootCmd.AddCommand(addCmd, dueCmd, showCmd, recordCmd, editCmd, searchCmd, statsCmd, deleteCmd, restoreCmd, purgeCmd, historyCmd)
}

func setup() error {
	instanceProfile := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version.GetCurrentVersion(viper.GetString("mode")),

		ReviewPenalty:       viper.GetFloat64("review-penalty"),
		ReviewShortInterval: viper.GetDuration("review-short-interval"),
		ReviewMaxInterval:   viper.GetDuration("review-max-interval"),
	}
	if err := instanceProfile.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if instanceProfile.IsDev() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	driver, err := db.NewDriver(instanceProfile)
	if err != nil {
		return err
	}
	engineStore = store.New(driver, instanceProfile)
	return nil
}

func runAdd(cmd *cobra.Command, _ []string) error {
	keyPoint, _ := cmd.Flags().GetString("key-point")
	sentence, _ := cmd.Flags().GetString("sentence")
	answer, _ := cmd.Flags().GetString("answer")
	correct, _ := cmd.Flags().GetString("correct")
	explanation, _ := cmd.Flags().GetString("explanation")
	acceptable, _ := cmd.Flags().GetBool("acceptable")
	hint, _ := cmd.Flags().GetString("category-hint")
	tags, _ := cmd.Flags().GetStringSlice("tag")

	point, err := engineStore.CreateKnowledgePoint(cmd.Context(), &store.CreateKnowledgePoint{
		KeyPoint:      keyPoint,
		Explanation:   explanation,
		Sentence:      sentence,
		LearnerAnswer: answer,
		CorrectAnswer: correct,
		Acceptable:    acceptable,
		CategoryHint:  hint,
		Tags:          tags,
	})
	if err != nil {
		return err
	}
	printPoint(point)
	return nil
}

func runDue(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	points, err := engineStore.FindDueForReview(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		fmt.Println("nothing due for review")
		return nil
	}
	for _, point := range points {
		printPointLine(point)
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	detail, err := engineStore.GetKnowledgePointDetail(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printPoint(detail.Point)
	fmt.Printf("original error:\n  sentence: %s\n  answered: %s\n  correct:  %s\n",
		detail.OriginalError.Sentence, detail.OriginalError.LearnerAnswer, detail.OriginalError.CorrectAnswer)
	if len(detail.Examples) > 0 {
		fmt.Println("review history:")
		for _, example := range detail.Examples {
			mark := "✗"
			if example.Correct {
				mark = "✓"
			}
			fmt.Printf("  %s %s  %s\n", mark, formatTs(example.CreatedTs), example.Sentence)
		}
	}
	return nil
}

func runRecord(cmd *cobra.Command, args []string) error {
	sentence, _ := cmd.Flags().GetString("sentence")
	answer, _ := cmd.Flags().GetString("answer")
	correctAnswer, _ := cmd.Flags().GetString("correct-answer")
	correct, _ := cmd.Flags().GetBool("correct")

	point, err := engineStore.RecordOutcome(cmd.Context(), args[0], &store.Outcome{
		Sentence:      sentence,
		LearnerAnswer: answer,
		CorrectAnswer: correctAnswer,
		Correct:       correct,
	})
	if err != nil {
		return err
	}
	printPoint(point)
	return nil
}

func runEdit(cmd *cobra.Command, args []string) error {
	patch := &store.KnowledgePointPatch{}
	if cmd.Flags().Changed("key-point") {
		v, _ := cmd.Flags().GetString("key-point")
		patch.KeyPoint = &v
	}
	if cmd.Flags().Changed("explanation") {
		v, _ := cmd.Flags().GetString("explanation")
		patch.Explanation = &v
	}
	if cmd.Flags().Changed("notes") {
		v, _ := cmd.Flags().GetString("notes")
		patch.CustomNotes = &v
	}
	if cmd.Flags().Changed("tag") {
		v, _ := cmd.Flags().GetStringSlice("tag")
		patch.Tags = &v
	}

	point, err := engineStore.UpdateKnowledgePoint(cmd.Context(), args[0], patch)
	if err != nil {
		return err
	}
	printPoint(point)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	points, err := engineStore.SearchKnowledgePoints(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(points) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, point := range points {
		printPointLine(point)
	}
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	stats, err := engineStore.GetStatistics(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("total points:    %d\n", stats.TotalPoints)
	fmt.Printf("due for review:  %d\n", stats.DueCount)
	fmt.Printf("mastered:        %d\n", stats.MasteredCount)
	fmt.Printf("average mastery: %.2f\n", stats.AverageMastery)
	fmt.Printf("mistakes total:  %d\n", stats.TotalMistakes)
	fmt.Printf("correct total:   %d\n", stats.TotalCorrect)
	for category, count := range stats.ByCategory {
		fmt.Printf("  %s: %d\n", category, count)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	reason, _ := cmd.Flags().GetString("reason")
	transitioned, err := engineStore.SoftDeleteKnowledgePoint(cmd.Context(), args[0], reason)
	if err != nil {
		return err
	}
	if !transitioned {
		fmt.Printf("%s was already deleted\n", args[0])
		return nil
	}
	fmt.Printf("%s deleted\n", args[0])
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	transitioned, err := engineStore.RestoreKnowledgePoint(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !transitioned {
		fmt.Printf("%s was not deleted\n", args[0])
		return nil
	}
	fmt.Printf("%s restored\n", args[0])
	return nil
}

func runPurge(cmd *cobra.Command, args []string) error {
	if err := engineStore.PurgeKnowledgePoint(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("%s purged\n", args[0])
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	records, err := engineStore.ListVersionRecords(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, record := range records {
		fmt.Printf("v%d  %s  %s\n", record.VersionNumber, formatTs(record.ChangedTs), strings.Join(record.ChangedFields, ", "))
	}
	return nil
}

func printPoint(point *store.KnowledgePoint) {
	fmt.Printf("%s (v%d)\n", point.UID, point.Version)
	fmt.Printf("  key point:  %s\n", point.KeyPoint)
	fmt.Printf("  category:   %s/%s\n", point.Category, point.Subtype)
	if point.Explanation != "" {
		fmt.Printf("  explains:   %s\n", point.Explanation)
	}
	fmt.Printf("  mastery:    %.2f (%d wrong, %d right)\n", point.MasteryLevel, point.MistakeCount, point.CorrectCount)
	if point.NextReviewTs != nil {
		fmt.Printf("  next review: %s\n", formatTs(*point.NextReviewTs))
	}
	if len(point.Tags) > 0 {
		fmt.Printf("  tags:       %s\n", strings.Join(point.Tags, ", "))
	}
	if point.IsDeleted {
		fmt.Printf("  deleted:    %s\n", point.DeletedReason)
	}
}

func printPointLine(point *store.KnowledgePoint) {
	fmt.Printf("%s  %.2f  %s/%s  %s\n", point.UID, point.MasteryLevel, point.Category, point.Subtype, point.KeyPoint)
}

func formatTs(ts int64) string {
	return time.Unix(ts, 0).Format("2006-01-02 15:04")
}

func main() {
	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
