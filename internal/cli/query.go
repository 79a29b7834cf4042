package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/recall/internal/client"
	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/server"
)

var (
	queryProject   string
	querySession   string
	queryTopK      int
	queryThreshold float64
	querySince     string
	queryDiscarded bool
	answerCompare  bool
)

// useRemote routes a command through a running server.
var useRemote bool

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Retrieve and rank memories",
	Long:  "Run a fused semantic, temporal and relational retrieval and print the ranked records.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

var answerCmd = &cobra.Command{
	Use:   "answer [question]",
	Short: "Answer a question from retained memories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAnswer,
}

func init() {
	for _, c := range []*cobra.Command{queryCmd, answerCmd} {
		c.Flags().StringVarP(&queryProject, "project", "p", "", "Project to match")
		c.Flags().StringVarP(&querySession, "session", "s", "", "Session to anchor relational retrieval on")
		c.Flags().IntVarP(&queryTopK, "top-k", "n", 0, "Maximum records to retain (0 uses config)")
		c.Flags().Float64Var(&queryThreshold, "threshold", -1, "Minimum fused score (negative uses config)")
		c.Flags().StringVar(&querySince, "since", "", "Only temporal records after this timestamp")
		addRemoteFlag(c)
	}
	queryCmd.Flags().BoolVar(&queryDiscarded, "discarded", false, "Also print records below the threshold")
	answerCmd.Flags().BoolVar(&answerCompare, "compare", false, "Also ask the model without memory context")
}

func queryRequest(args []string) server.QueryRequest {
	req := server.QueryRequest{
		Text:       strings.Join(args, " "),
		Project:    queryProject,
		SessionID:  querySession,
		TopK:       queryTopK,
		Since:      querySince,
		CompareRaw: answerCompare,
	}
	if queryThreshold >= 0 {
		t := queryThreshold
		req.Threshold = &t
	}
	return req
}

func runQuery(cmd *cobra.Command, args []string) error {
	req := queryRequest(args)
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	var res *engine.Result
	err := withBackend(ctx, func(c *client.Client) (err error) {
		res, err = c.Query(ctx, req)
		return err
	}, func(st *stack) error {
		q, err := req.Query()
		if err != nil {
			return err
		}
		res, err = st.engine.Query(ctx, q)
		return err
	})
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	printResult(cmd.OutOrStdout(), res, queryDiscarded)
	return nil
}

func runAnswer(cmd *cobra.Command, args []string) error {
	req := queryRequest(args)
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	var ans *server.AnswerResponse
	err := withBackend(ctx, func(c *client.Client) (err error) {
		ans, err = c.Answer(ctx, req)
		return err
	}, func(st *stack) error {
		q, err := req.Query()
		if err != nil {
			return err
		}
		a, err := st.engine.Responder.Answer(ctx, q, req.CompareRaw)
		if err != nil {
			return err
		}
		ans = &server.AnswerResponse{
			Answer:   a.Answer,
			Raw:      a.Raw,
			Provider: a.Provider,
			Result:   a.Result,
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, ans.Answer)
	if ans.Raw != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "## Without memory")
		fmt.Fprintln(w)
		fmt.Fprintln(w, ans.Raw)
	}
	if ans.Result != nil {
		fmt.Fprintf(w, "\n(%d memories used", len(ans.Result.Retained))
		if ans.Provider != "" {
			fmt.Fprintf(w, ", %s", ans.Provider)
		}
		fmt.Fprintln(w, ")")
	}
	return nil
}

// withBackend runs remote against the server when --remote is set and
// local against freshly opened stores otherwise.
func withBackend(ctx context.Context, remote func(*client.Client) error, local func(*stack) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if useRemote {
		return remote(client.New(cfg.BaseURL()))
	}
	st, err := openStack(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.reindexStale(ctx); err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	return local(st)
}

func addRemoteFlag(c *cobra.Command) {
	c.Flags().BoolVar(&useRemote, "remote", false, "Use a running server instead of opening the stores")
}

func printResult(w io.Writer, res *engine.Result, discarded bool) {
	for _, s := range res.Sources {
		status := "ok"
		if s.Degraded {
			status = "degraded: " + s.Error
		}
		fmt.Fprintf(w, "# %-10s %2d candidates  %s\n", s.Source, s.Count, status)
	}
	fmt.Fprintln(w)

	if len(res.Retained) == 0 {
		fmt.Fprintln(w, "No records above the threshold.")
	}
	for i, r := range res.Retained {
		printRecord(w, i+1, r, res.Breakdowns[r.ID])
	}
	if len(res.Overflow) > 0 {
		fmt.Fprintf(w, "(%d more above the threshold beyond top-k)\n", len(res.Overflow))
	}

	if discarded && len(res.Discarded) > 0 {
		fmt.Fprintln(w, "\n## Discarded")
		fmt.Fprintln(w)
		for i, r := range res.Discarded {
			printRecord(w, i+1, r, res.Breakdowns[r.ID])
		}
	}
}

func printRecord(w io.Writer, n int, r memory.Record, b engine.Breakdown) {
	fmt.Fprintf(w, "%d. [%.3f] %s (%s, %s, %s)\n", n, r.Score, r.ID, r.Source, r.Project, r.User)
	content := r.Content
	if len(content) > 200 {
		content = content[:200] + "..."
	}
	fmt.Fprintf(w, "   %s\n", content)
	fmt.Fprintf(w, "   sem %.2f  rec %.2f  proj %.2f  spk %.2f  boost %.2f\n\n",
		b.Semantic.Value, b.Recency.Value, b.Project.Value, b.Speaker.Value, b.Boost.Value)
}
