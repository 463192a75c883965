package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom-cli/internal/chart"
	"github.com/KaramelBytes/vizloom-cli/internal/dashboard"
	"github.com/KaramelBytes/vizloom-cli/internal/session"
)

const shellHelp = `Commands:
  goal <text>                 set the analysis goal and get processing recommendations
  apply                       apply the current recommendations
  reset                       restore the original dataset
  visualize                   recommend and build charts for the processed dataset
  insights                    describe the dataset
  create <type> <x> <y[,y2]>  build a chart
  convert <chart> <type>      change a chart's type (chart = # or id)
  compat <chart>              list the types a chart can be converted to
  charts                      list charts
  delete <chart>              delete a chart
  log                         show the processing log and preview
  export <path>               write the dashboard as JSON
  open <file>                 open another dataset in a new session
  sessions                    list open sessions
  use <#|id>                  switch to another session
  close                       close the current session
  help                        show this help
  quit                        exit`

var shellCmd = &cobra.Command{
	Use:   "shell <file>",
	Short: "Explore a dataset interactively: goal, processing, charts and export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		sh := &shell{svc: a.svc, out: cmd.OutOrStdout()}
		if err := sh.open(args[0]); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "Type 'help' for commands.")
		return sh.loop(cmd.Context(), cmd.InOrStdin())
	},
}

type shell struct {
	svc     *dashboard.Service
	out     io.Writer
	current string
}

func (s *shell) loop(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "vizloom> ")
		if !sc.Scan() {
			fmt.Fprintln(s.out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		verb, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)
		if verb == "quit" || verb == "exit" {
			return nil
		}
		if err := s.dispatch(ctx, strings.ToLower(verb), rest); err != nil {
			fmt.Fprintln(s.out, "✗ Error:", err)
		}
	}
}

var errNoSession = errors.New("no open session; use 'open <file>'")

func (s *shell) dispatch(ctx context.Context, verb, rest string) error {
	switch verb {
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
		return nil
	case "open":
		return s.open(rest)
	case "sessions":
		for i, m := range s.svc.Sessions() {
			marker := " "
			if m.ID == s.current {
				marker = "*"
			}
			fmt.Fprintf(s.out, "%s%d. %s  %s  rows=%d charts=%d  %s\n", marker, i+1, m.ID, m.FileName, m.RowCount, m.Charts, m.Goal)
		}
		return nil
	case "use":
		return s.use(rest)
	}
	if s.current == "" {
		return errNoSession
	}
	id := s.current
	switch verb {
	case "goal":
		rec, err := s.svc.SetGoal(ctx, id, rest)
		if err != nil {
			return err
		}
		sourceLine(s.out, rec.Source, rec.FallbackReason)
		printProcessing(s.out, rec.Recommendations)
	case "apply":
		resp, err := s.svc.Apply(id, nil)
		if err != nil {
			return err
		}
		printProcessed(s.out, resp)
	case "reset":
		resp, err := s.svc.Reset(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "✓ Reset to %d rows, %d columns\n", resp.RowCount, resp.ColumnCount)
	case "log":
		resp, err := s.svc.Processed(id)
		if err != nil {
			return err
		}
		printProcessed(s.out, resp)
	case "visualize":
		res, err := s.svc.Visualize(ctx, id)
		if err != nil {
			return err
		}
		printVisualization(s.out, res)
	case "insights":
		out, err := s.svc.Insights(ctx, id)
		if err != nil {
			return err
		}
		printInsights(s.out, out)
	case "create":
		f := strings.Fields(rest)
		if len(f) < 3 {
			return errors.New("usage: create <type> <x> <y[,y2]>")
		}
		t, err := chart.ParseType(f[0])
		if err != nil {
			return err
		}
		c, err := s.svc.CreateChart(id, chart.Spec{Type: t, X: f[1], Y: strings.Split(f[2], ","), Title: strings.Join(f[3:], " ")})
		if err != nil {
			return err
		}
		charts, err := s.svc.Charts(id)
		if err != nil {
			return err
		}
		printChart(s.out, len(charts), c)
	case "convert":
		f := strings.Fields(rest)
		if len(f) != 2 {
			return errors.New("usage: convert <chart> <type>")
		}
		t, err := chart.ParseType(f[1])
		if err != nil {
			return err
		}
		c, err := resolveChart(s.svc, id, f[0])
		if err != nil {
			return err
		}
		from := c.Type
		c, err = s.svc.ConvertChart(id, c.ID, t)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "✓ Converted %s → %s\n", from, c.Type)
	case "compat":
		c, err := resolveChart(s.svc, id, rest)
		if err != nil {
			return err
		}
		compat, err := s.svc.Compat(id, c.ID)
		if err != nil {
			return err
		}
		printCompat(s.out, compat)
	case "charts":
		charts, err := s.svc.Charts(id)
		if err != nil {
			return err
		}
		printCharts(s.out, charts)
	case "delete":
		c, err := resolveChart(s.svc, id, rest)
		if err != nil {
			return err
		}
		if err := s.svc.DeleteChart(id, c.ID); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "✓ Deleted chart %s\n", c.ID)
	case "export":
		if rest == "" {
			return errors.New("usage: export <path>")
		}
		exp, err := s.svc.SaveExport(id, rest)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "✓ Exported %d charts to %s\n", len(exp.Charts), rest)
	case "close":
		if err := s.svc.DeleteSession(id); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "✓ Closed session %s\n", id)
		s.current = ""
		if left := s.svc.Sessions(); len(left) > 0 {
			s.current = left[len(left)-1].ID
		}
	default:
		return fmt.Errorf("unknown command %q (type 'help')", verb)
	}
	return nil
}

func (s *shell) open(path string) error {
	if path == "" {
		return errors.New("usage: open <file>")
	}
	up, err := s.svc.Upload(path)
	if err != nil {
		return err
	}
	s.current = up.Session.ID
	fmt.Fprintf(s.out, "✓ Opened %s (%d rows, %d columns) session %s\n",
		up.Session.FileName, up.Schema.RowCount, up.Schema.ColumnCount, up.Session.ID)
	return nil
}

func (s *shell) use(ref string) error {
	list := s.svc.Sessions()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(list) {
			return fmt.Errorf("%w: #%d", session.ErrNotFound, n)
		}
		s.current = list[n-1].ID
		return nil
	}
	for _, m := range list {
		if m.ID == ref || (ref != "" && strings.HasPrefix(m.ID, ref)) {
			s.current = m.ID
			return nil
		}
	}
	return fmt.Errorf("%w: %s", session.ErrNotFound, ref)
}

func init() {
	rootCmd.AddCommand(shellCmd)
	addDataFlags(shellCmd)
}
