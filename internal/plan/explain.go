package plan

import (
	"fmt"
	"strings"

	"github.com/roach88/streamplan/internal/expr"
	"github.com/roach88/streamplan/internal/schema"
)

// Explain renders the plan as an indented tree, one node per line, root
// first. With a non-nil oracle each line also shows the partition count.
func Explain(root Node, oracle PartitionOracle) (string, error) {
	if root == nil {
		return "", configError("", "plan root is required")
	}
	x := &explainer{oracle: oracle}
	if _, err := Visit[int, struct{}](root, x, 0); err != nil {
		return "", err
	}
	return x.buf.String(), nil
}

type explainer struct {
	oracle PartitionOracle
	buf    strings.Builder
}

func (x *explainer) line(n Node, depth int, detail string) error {
	fmt.Fprintf(&x.buf, "%s%s %s: %s | %s key=%s %s",
		strings.Repeat("  ", depth), Kind(n), n.ID(), detail,
		n.Schema(), keyOrDash(n.KeyField()), n.OutputType())
	if x.oracle != nil {
		p, err := n.Partitions(x.oracle)
		if err != nil {
			return err
		}
		fmt.Fprintf(&x.buf, " partitions=%d", p)
	}
	x.buf.WriteByte('\n')

	for _, s := range n.Sources() {
		if _, err := Visit[int, struct{}](s, x, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func keyOrDash(f *schema.Field) string {
	if f == nil {
		return "-"
	}
	return f.Name
}

func joinSelects(selects []expr.SelectExpression) string {
	parts := make([]string, len(selects))
	for i, s := range selects {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}

func (x *explainer) VisitScan(n *ScanNode, depth int) (struct{}, error) {
	return struct{}{}, x.line(n, depth, "stream="+n.Stream())
}

func (x *explainer) VisitFilter(n *FilterNode, depth int) (struct{}, error) {
	return struct{}{}, x.line(n, depth, "where "+n.Predicate().String())
}

func (x *explainer) VisitProject(n *ProjectNode, depth int) (struct{}, error) {
	return struct{}{}, x.line(n, depth, "select "+joinSelects(n.SelectExpressions()))
}

func (x *explainer) VisitAggregate(n *AggregateNode, depth int) (struct{}, error) {
	detail := "group by " + joinSelects(n.GroupBySelects())
	if aggs := n.AggregateSelects(); len(aggs) > 0 {
		detail += " compute " + joinSelects(aggs)
	}
	detail += " window " + n.Window().String() + " emit " + string(n.Emit())
	return struct{}{}, x.line(n, depth, detail)
}

func (x *explainer) VisitJoin(n *JoinNode, depth int) (struct{}, error) {
	detail := string(n.JoinType()) + " on " + n.Condition().String()
	if n.Window().Windowed() {
		detail += " window " + n.Window().String()
	}
	return struct{}{}, x.line(n, depth, detail)
}

func (x *explainer) VisitSink(n *SinkNode, depth int) (struct{}, error) {
	return struct{}{}, x.line(n, depth, "into "+n.Destination())
}
