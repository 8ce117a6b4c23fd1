package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/motrack/internal/httputil"
	"github.com/banshee-data/motrack/internal/mot/storage/sqlite"
)

// AttachAdminRoutes mounts the debug pages for a results store under
// /debug/ on mux: the tailsql console, the run list and a per-run chart of
// track lifetimes. mux must not already carry a /debug/ handler.
func AttachAdminRoutes(mux *http.ServeMux, store *sqlite.Store) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://tracks.db", store.DB(), &tailsql.DBOptions{
		Label: "Tracking results",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("runs", "Tracking runs (JSON)", runsHandler(store))
	debug.Handle("run-chart", "Track lifetimes for ?run_id=", runChartHandler(store))
	return nil
}

func runsHandler(store *sqlite.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		runs, err := store.ListRuns(r.Context())
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		if runs == nil {
			runs = []sqlite.Run{}
		}
		httputil.WriteJSON(w, http.StatusOK, runs)
	})
}

func runChartHandler(store *sqlite.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID := r.URL.Query().Get("run_id")
		if runID == "" {
			httputil.BadRequest(w, "missing run_id")
			return
		}
		sums, err := store.TrackSummaries(r.Context(), runID)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		if len(sums) == 0 {
			httputil.NotFound(w, "no tracks for run "+runID)
			return
		}

		var buf bytes.Buffer
		if err := renderLifetimes(&buf, runID, sums); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
			return
		}
		httputil.WriteHTML(w, buf.Bytes())
	})
}

// renderLifetimes draws one bar per track: frames spanned and frames
// actually reported.
func renderLifetimes(buf *bytes.Buffer, runID string, sums []sqlite.TrackSummary) error {
	x := make([]string, len(sums))
	span := make([]opts.BarData, len(sums))
	seen := make([]opts.BarData, len(sums))
	for i, s := range sums {
		x[i] = strconv.FormatInt(s.TrackID, 10)
		span[i] = opts.BarData{Value: s.LastFrame - s.FirstFrame + 1}
		seen[i] = opts.BarData{Value: s.Observations}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Track lifetimes", Subtitle: fmt.Sprintf("run=%s tracks=%d", runID, len(sums))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "track", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "frames", NameLocation: "middle", NameGap: 30}),
	)
	bar.SetXAxis(x).
		AddSeries("span", span).
		AddSeries("reported", seen)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)
	return page.Render(buf)
}
