package watch

import (
	"fmt"
	"io"
	"strings"

	"github.com/okian/pulse/internal/client/buffer"
	"github.com/okian/pulse/internal/client/stream"
	"github.com/okian/pulse/internal/domain/model"
)

// WriteReport prints one status line for buf and, when tail is positive,
// the newest tail records matching category.
func WriteReport(w io.Writer, buf *buffer.Buffer, category model.Category, tail int, status stream.Status) {
	snap := buf.Snapshot()
	records := buf.Records(category)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] seen=%d stored=%d pending=%d rate=%.1f/s %s=%d",
		status.State, snap.TotalSeen, snap.Stored, snap.Pending, snap.Throughput,
		categoryLabel(category), len(records),
	)
	if status.Outbound > 0 {
		fmt.Fprintf(&b, " queued=%d", status.Outbound)
	}
	if srv := snap.Server; srv != nil && srv.Stats != nil {
		running := "stopped"
		if srv.Stats.Running {
			running = "running"
		}
		fmt.Fprintf(&b, " server=%s@%d/s total=%d subs=%d",
			running, srv.Stats.Rate, srv.Total, srv.Stats.Subscribers)
	}
	b.WriteByte('\n')

	if tail > 0 {
		if len(records) > tail {
			records = records[len(records)-tail:]
		}
		for _, e := range records {
			fmt.Fprintf(&b, "  %s %-11s %7.2f\n", e.GeneratedAt.Format("15:04:05.000"), e.Category, e.Value)
		}
	}
	_, _ = io.WriteString(w, b.String())
}
