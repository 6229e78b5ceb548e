package diagram

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	maxTaskDays = 36500
)

// Task is one bar of a gantt chart. Start and End are resolved dates; End is exclusive.
type Task struct {
	Name    string
	Section string
	Start   time.Time
	End     time.Time
	After   string
	Line    int
}

// Gantt is the parsed and resolved model of a gantt chart.
type Gantt struct {
	Title    string
	Sections []string
	Tasks    []*Task
}

var (
	ganttTitleRe   = regexp.MustCompile(`^title\s+(.+)$`)
	ganttSectionRe = regexp.MustCompile(`^section\s+(.+)$`)
	ganttFormatRe  = regexp.MustCompile(`^(?:gantt|dateFormat\s+\S+|axisFormat\s+\S+)$`)
	taskRe         = regexp.MustCompile(`^([^:\[]+?)\s*(?:\[(\d{4}-\d{2}-\d{2})\])?\s*:\s*(.+)$`)
	durationRe     = regexp.MustCompile(`^(\d+)\s*([dw])$`)
	afterRe        = regexp.MustCompile(`^after\s+(.+)$`)
	isoDateRe      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

type taskSpec struct {
	task  *Task
	start string
	days  int
}

// ParseGantt parses gantt source and resolves task dates.
func ParseGantt(source string) (*Gantt, error) {
	g := &Gantt{}
	section := ""
	var specs []*taskSpec
	byName := make(map[string]*taskSpec)
	for _, st := range statements(source) {
		fail := func(format string, args ...any) error {
			return &ParseError{Kind: KindGantt, Line: st.line, Statement: st.text, Reason: fmt.Sprintf(format, args...)}
		}
		if ganttFormatRe.MatchString(st.text) {
			continue
		}
		if m := ganttTitleRe.FindStringSubmatch(st.text); m != nil {
			g.Title = strings.TrimSpace(m[1])
			continue
		}
		if m := ganttSectionRe.FindStringSubmatch(st.text); m != nil {
			section = strings.TrimSpace(m[1])
			g.Sections = append(g.Sections, section)
			continue
		}
		m := taskRe.FindStringSubmatch(st.text)
		if m == nil {
			return nil, fail("unrecognized statement")
		}
		name := strings.TrimSpace(m[1])
		if _, dup := byName[name]; dup {
			return nil, fail("duplicate task %q", name)
		}
		spec := &taskSpec{task: &Task{Name: name, Section: section, Line: st.line}, start: m[2]}
		parts := strings.Split(m[3], ",")
		durText := strings.TrimSpace(parts[len(parts)-1])
		dm := durationRe.FindStringSubmatch(durText)
		if dm == nil {
			return nil, fail("invalid duration %q", durText)
		}
		n, err := strconv.Atoi(dm[1])
		unit := 1
		if dm[2] == "w" {
			unit = 7
		}
		if err != nil || n > maxTaskDays/unit {
			return nil, fail("invalid duration %q", durText)
		}
		n *= unit
		spec.days = n
		if len(parts) > 2 {
			return nil, fail("too many fields")
		}
		if len(parts) == 2 {
			first := strings.TrimSpace(parts[0])
			switch {
			case afterRe.MatchString(first):
				spec.task.After = strings.TrimSpace(afterRe.FindStringSubmatch(first)[1])
			case isoDateRe.MatchString(first) && spec.start == "":
				spec.start = first
			default:
				return nil, fail("invalid task start %q", first)
			}
		}
		if spec.start == "" && spec.task.After == "" {
			if len(specs) == 0 {
				return nil, fail("task %q has no start date", name)
			}
			spec.task.After = specs[len(specs)-1].task.Name
		}
		specs = append(specs, spec)
		byName[name] = spec
	}
	if err := resolveTasks(specs, byName); err != nil {
		return nil, err
	}
	for _, s := range specs {
		g.Tasks = append(g.Tasks, s.task)
	}
	return g, nil
}

// resolveTasks computes dates, following "after" dependencies depth first. A task seen
// again while its own dependency chain is being resolved is a cycle.
func resolveTasks(specs []*taskSpec, byName map[string]*taskSpec) error {
	resolved := make(map[string]bool, len(specs))
	visiting := make(map[string]bool)
	var resolve func(s *taskSpec) error
	resolve = func(s *taskSpec) error {
		t := s.task
		if resolved[t.Name] {
			return nil
		}
		if visiting[t.Name] {
			return &ParseError{Kind: KindGantt, Line: t.Line, Reason: fmt.Sprintf("cyclic dependency through task %q", t.Name)}
		}
		visiting[t.Name] = true
		defer delete(visiting, t.Name)
		if t.After != "" {
			dep, ok := byName[t.After]
			if !ok {
				return &ParseError{Kind: KindGantt, Line: t.Line, Reason: fmt.Sprintf("task %q depends on unknown task %q", t.Name, t.After)}
			}
			if err := resolve(dep); err != nil {
				return err
			}
			t.Start = dep.task.End
		} else {
			start, err := time.Parse(dateLayout, s.start)
			if err != nil {
				return &ParseError{Kind: KindGantt, Line: t.Line, Reason: fmt.Sprintf("invalid date %q", s.start)}
			}
			t.Start = start
		}
		t.End = t.Start.AddDate(0, 0, s.days)
		resolved[t.Name] = true
		return nil
	}
	for _, s := range specs {
		if err := resolve(s); err != nil {
			return err
		}
	}
	return nil
}

const (
	rowHeight   = 28.0
	barHeight   = 18.0
	axisHeight  = 30.0
	defaultSpan = 720.0
)

// RenderGantt renders gantt source as SVG.
func RenderGantt(source string, opts Options) (string, error) {
	g, err := ParseGantt(source)
	if err != nil {
		return "", err
	}
	doc := newSVG(idPrefix(KindGantt, source))
	span := opts.Width
	if span <= 0 {
		span = defaultSpan
	}

	labelWidth := 0.0
	for _, t := range g.Tasks {
		labelWidth = max(labelWidth, textWidth(t.Name))
	}
	for _, s := range g.Sections {
		labelWidth = max(labelWidth, textWidth(s))
	}
	labelWidth += 20

	top := margin
	if g.Title != "" {
		top += 30
	}
	left := margin + labelWidth
	width := left + span + margin
	rows := len(g.Tasks)
	height := top + axisHeight + float64(rows)*rowHeight + margin
	if g.Title != "" {
		doc.text(width/2, margin+10, "middle", "title", g.Title)
	}
	if rows == 0 {
		return doc.String(KindGantt, width, height), nil
	}

	minDate, maxDate := g.Tasks[0].Start, g.Tasks[0].End
	for _, t := range g.Tasks {
		if t.Start.Before(minDate) {
			minDate = t.Start
		}
		if t.End.After(maxDate) {
			maxDate = t.End
		}
	}
	totalDays := max(days(minDate, maxDate), 1)
	scale := span / float64(totalDays)
	xOf := func(d time.Time) float64 { return left + float64(days(minDate, d))*scale }

	chartTop := top + axisHeight
	chartBottom := chartTop + float64(rows)*rowHeight
	step := tickStep(totalDays)
	for d := 0; d <= totalDays; d += step {
		x := left + float64(d)*scale
		doc.line(x, chartTop, x, chartBottom, "grid", "")
		doc.text(x, top+axisHeight/2, "middle", "tick", minDate.AddDate(0, 0, d).Format("Jan 2"))
	}
	doc.line(left, chartTop, left+span, chartTop, "axis", "")

	section := "\x00"
	for i, t := range g.Tasks {
		y := chartTop + float64(i)*rowHeight
		if t.Section != section && t.Section != "" {
			doc.rect(margin, y, width-2*margin, rowHeight*float64(countSection(g.Tasks[i:], t.Section)), 0, "section")
			doc.text(margin+4, y+8, "start", "section-label", t.Section)
		}
		section = t.Section
		x1, x2 := xOf(t.Start), xOf(t.End)
		doc.rect(x1, y+(rowHeight-barHeight)/2, max(x2-x1, 2), barHeight, 3, "task")
		doc.text(left-8, y+rowHeight/2, "end", "task-label", t.Name)
	}
	return doc.String(KindGantt, width, height), nil
}

func days(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func countSection(tasks []*Task, section string) int {
	n := 0
	for _, t := range tasks {
		if t.Section != section {
			break
		}
		n++
	}
	return n
}

// tickStep picks a day interval giving at most ten axis ticks.
func tickStep(totalDays int) int {
	for _, s := range []int{1, 2, 7, 14, 30, 60, 90, 180, 365} {
		if totalDays/s <= 10 {
			return s
		}
	}
	return totalDays/10 + 1
}
