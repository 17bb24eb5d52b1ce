package report

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rewired-gh/rescatter/internal/models"
)

// WriteRunList prints stored runs as an aligned table, one run per line.
// Start times are shown relative to now.
func WriteRunList(w io.Writer, runs []models.RunSummary, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tANALYSIS\tFILES\tEVENTS\tRESULT\tSTARTED")
	for _, r := range runs {
		name := r.Analysis
		if r.Channel != "" {
			name += "/" + r.Channel
		}
		result := "undefined"
		if r.ResultDefined {
			result = strconv.FormatFloat(r.Result, 'g', 6, 64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			r.ID, name, r.FilesProcessed, r.FilesListed,
			humanize.Comma(int64(r.Events)), result,
			humanize.RelTime(r.StartedAt, now, "ago", "from now"))
	}
	return tw.Flush()
}
